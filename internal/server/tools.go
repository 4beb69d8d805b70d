package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/papercast/internal/store"
)

var tracer = otel.Tracer("papercast-server")

var voiceProperties = map[string]any{
	"preset": map[string]any{
		"type":        "string",
		"description": "Voice preset for the Host/Expert pair (see list_voices in the CLI)",
	},
	"host_voice": map[string]any{
		"type":        "string",
		"description": "Host voice key; used only together with expert_voice",
	},
	"expert_voice": map[string]any{
		"type":        "string",
		"description": "Expert voice key; used only together with host_voice",
	},
	"target_words": map[string]any{
		"type":        "integer",
		"description": "Upper bound on spoken words; 0 means no limit",
		"default":     0,
	},
}

func withVoiceProperties(props map[string]any) map[string]any {
	for k, v := range voiceProperties {
		props[k] = v
	}
	return props
}

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "generate_episode",
			Description: "Generate a two-voice Host/Expert podcast episode from a paper (arXiv id or URL, web page, or inline text). Starts an async task and returns an episode ID. Use get_episode to check progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: withVoiceProperties(map[string]any{
					"source": map[string]any{
						"type":        "string",
						"description": "arXiv id or URL, or the URL of an article to discuss",
					},
					"input_text": map[string]any{
						"type":        "string",
						"description": "Raw paper text (alternative to source)",
					},
					"technical_level": map[string]any{
						"type":        "string",
						"description": "Audience level: beginner, intermediate, advanced",
						"default":     "intermediate",
					},
					"host_persona": map[string]any{
						"type":        "string",
						"description": "Host persona id",
					},
					"expert_persona": map[string]any{
						"type":        "string",
						"description": "Expert persona id",
					},
					"topics": map[string]any{
						"type":        "string",
						"description": "Comma-separated topics the conversation should cover",
					},
				}),
			},
		},
		{
			Name:        "generate_audio",
			Description: "Synthesize an episode from an existing Host/Expert transcript. Starts an async task and returns an episode ID.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: withVoiceProperties(map[string]any{
					"script": map[string]any{
						"type":        "string",
						"description": "Transcript with Host: and Expert: turns",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "Episode title",
					},
				}),
				Required: []string{"script"},
			},
		},
		{
			Name:        "get_episode",
			Description: "Get the status and details of an episode by ID. Use this to check on a running generation or retrieve a completed episode's audio URL.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"episode_id": map[string]any{
						"type":        "string",
						"description": "The episode ID returned from generate_episode or generate_audio",
					},
					"include_transcript": map[string]any{
						"type":        "boolean",
						"description": "Include the raw transcript in the result",
						"default":     false,
					},
				},
				Required: []string{"episode_id"},
			},
		},
		{
			Name:        "list_episodes",
			Description: "List episodes, newest first. Returns episode IDs, titles, status, and audio URLs.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     store.DefaultListLimit,
					},
					"cursor": map[string]any{
						"type":        "string",
						"description": "Pagination cursor from a previous list_episodes call",
					},
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	tasks *TaskManager
	store store.Store
	log   *slog.Logger
}

func NewHandlers(tasks *TaskManager, st store.Store, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, store: st, log: logger}
}

// HandleGenerateEpisode starts a full episode run.
func (h *Handlers) HandleGenerateEpisode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_episode")
	defer span.End()

	job := EpisodeJob{
		Source:         mcp.ParseString(req, "source", ""),
		InputText:      mcp.ParseString(req, "input_text", ""),
		TechnicalLevel: mcp.ParseString(req, "technical_level", "intermediate"),
		HostPersona:    mcp.ParseString(req, "host_persona", ""),
		ExpertPersona:  mcp.ParseString(req, "expert_persona", ""),
		CustomTopics:   splitList(mcp.ParseString(req, "topics", "")),
		TargetWords:    parseIntParam(req, "target_words", 0),
		Preset:         mcp.ParseString(req, "preset", ""),
		HostVoice:      mcp.ParseString(req, "host_voice", ""),
		ExpertVoice:    mcp.ParseString(req, "expert_voice", ""),
	}
	span.SetAttributes(
		attribute.String("source", job.Source),
		attribute.String("technical_level", job.TechnicalLevel),
		attribute.Int("target_words", job.TargetWords),
	)

	if job.Source == "" && job.InputText == "" {
		span.SetStatus(codes.Error, "missing input")
		return mcp.NewToolResultError("either source or input_text is required"), nil
	}
	if job.TargetWords < 0 {
		span.SetStatus(codes.Error, "bad target_words")
		return mcp.NewToolResultError("target_words must be >= 0"), nil
	}

	id, err := h.tasks.StartEpisode(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start task failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
	}

	span.SetAttributes(attribute.String("episode_id", id))
	h.log.InfoContext(ctx, "episode generation started", "episode_id", id, "source", job.Source)

	return jsonResult(map[string]any{
		"episode_id": id,
		"status":     string(store.StatusSubmitted),
		"message":    "Episode generation started. Use get_episode with this episode_id to check progress.",
	})
}

// HandleGenerateAudio starts an audio-only run.
func (h *Handlers) HandleGenerateAudio(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_audio")
	defer span.End()

	job := AudioJob{
		Script:      mcp.ParseString(req, "script", ""),
		Title:       mcp.ParseString(req, "title", ""),
		TargetWords: parseIntParam(req, "target_words", 0),
		Preset:      mcp.ParseString(req, "preset", ""),
		HostVoice:   mcp.ParseString(req, "host_voice", ""),
		ExpertVoice: mcp.ParseString(req, "expert_voice", ""),
	}
	span.SetAttributes(
		attribute.Int("script_chars", len(job.Script)),
		attribute.Int("target_words", job.TargetWords),
	)

	if strings.TrimSpace(job.Script) == "" {
		span.SetStatus(codes.Error, "missing script")
		return mcp.NewToolResultError("script is required"), nil
	}
	if job.TargetWords < 0 {
		span.SetStatus(codes.Error, "bad target_words")
		return mcp.NewToolResultError("target_words must be >= 0"), nil
	}

	id, err := h.tasks.StartAudio(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start task failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
	}

	span.SetAttributes(attribute.String("episode_id", id))
	h.log.InfoContext(ctx, "audio generation started", "episode_id", id)

	return jsonResult(map[string]any{
		"episode_id": id,
		"status":     string(store.StatusSubmitted),
		"message":    "Audio generation started. Use get_episode with this episode_id to check progress.",
	})
}

// HandleGetEpisode returns episode details.
func (h *Handlers) HandleGetEpisode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_episode")
	defer span.End()

	id := mcp.ParseString(req, "episode_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing episode_id")
		return mcp.NewToolResultError("episode_id is required"), nil
	}
	span.SetAttributes(attribute.String("episode_id", id))

	ep, err := h.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("episode %s not found", id)), nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get episode failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to get episode: %v", err)), nil
	}

	result := summary(ep)
	result["progress_percent"] = ep.ProgressPercent
	result["stage_message"] = ep.StageMessage
	if ep.Source != "" {
		result["source"] = ep.Source
	}
	if ep.SizeBytes > 0 {
		result["size_bytes"] = ep.SizeBytes
	}
	if ep.Tier != "" {
		result["tier"] = ep.Tier
		result["utterances"] = ep.Utterances
	}
	if ep.ErrorMessage != "" {
		result["error"] = ep.ErrorMessage
		result["error_stage"] = ep.ErrorStage
	}
	if ep.TTSProvider != "" {
		result["tts_provider"] = ep.TTSProvider
	}
	if ep.Model != "" {
		result["model"] = ep.Model
	}
	if ep.Preset != "" {
		result["preset"] = ep.Preset
	}
	if mcp.ParseBoolean(req, "include_transcript", false) && ep.Transcript != "" {
		result["transcript"] = ep.Transcript
	}

	return jsonResult(result)
}

// HandleListEpisodes returns a page of episodes.
func (h *Handlers) HandleListEpisodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_episodes")
	defer span.End()

	limit := parseIntParam(req, "limit", store.DefaultListLimit)
	cursor := mcp.ParseString(req, "cursor", "")
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("cursor", cursor),
	)

	items, next, err := h.store.List(ctx, limit, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list episodes failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list episodes: %v", err)), nil
	}
	span.SetAttributes(attribute.Int("result_count", len(items)))

	episodes := make([]map[string]any, 0, len(items))
	for i := range items {
		episodes = append(episodes, summary(&items[i]))
	}

	result := map[string]any{
		"episodes": episodes,
		"count":    len(episodes),
	}
	if next != "" {
		result["next_cursor"] = next
	}
	return jsonResult(result)
}

func summary(ep *store.Episode) map[string]any {
	m := map[string]any{
		"episode_id": ep.ID,
		"status":     string(ep.Status),
		"created_at": ep.CreatedAt.UTC().Format(time.RFC3339),
	}
	if ep.Title != "" {
		m["title"] = ep.Title
	}
	if ep.AudioURL != "" {
		m["audio_url"] = ep.AudioURL
	}
	if ep.Duration != "" {
		m["duration"] = ep.Duration
	}
	if ep.PlayCount > 0 {
		m["play_count"] = ep.PlayCount
	}
	return m
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
