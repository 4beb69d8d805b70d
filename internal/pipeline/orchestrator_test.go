package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/papercast/internal/assembly"
	"github.com/apresai/papercast/internal/ingest"
	"github.com/apresai/papercast/internal/progress"
	"github.com/apresai/papercast/internal/script"
	"github.com/apresai/papercast/internal/tts"
)

type fakeProvider struct {
	mu     sync.Mutex
	calls  []tts.SynthesisRequest
	failOn string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(_ context.Context, req tts.SynthesisRequest) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(req.Text, f.failOn) {
		return nil, errors.New("voice unavailable")
	}
	return []byte("<" + req.Voice.DisplayName + "|" + req.Text + ">"), nil
}

func (f *fakeProvider) Close() error { return nil }

type memStore struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (m *memStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.puts == nil {
		m.puts = map[string][]byte{}
	}
	m.puts[key] = data
	return "https://cdn.example.com/" + key, nil
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) callback(e progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) last() progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	orch     *Orchestrator
	provider *fakeProvider
	store    *memStore
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	dir, err := tts.DefaultDirectory("elevenlabs")
	require.NoError(t, err)

	h := &harness{provider: &fakeProvider{}, store: &memStore{}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := New(Config{
		Provider:  h.provider,
		Directory: dir,
		Synthesis: tts.SynthesizerConfig{Workers: workers},
		Assembler: assembly.NewAssembler(h.store, t.TempDir(), nil, log),
		Logger:    log,
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

const labelled = "## Episode 12\n\n**Host:** Welcome back. Today we read a paper on sparse attention.\n" +
	"Expert: Thanks for having me. The core idea is simple.\n" +
	"Host: Walk me through it.\n" +
	"Expert: Each token attends to a small window plus a few global tokens."

func states(ts []Transition) []State {
	out := make([]State, len(ts))
	for i, t := range ts {
		out[i] = t.State
	}
	return out
}

func TestGenerateAudioPublishes(t *testing.T) {
	h := newHarness(t, 1)
	rec := &recorder{}

	res, err := h.orch.GenerateAudio(context.Background(), Request{
		Script:    labelled,
		EpisodeID: "ep1",
		Progress:  rec.callback,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/audio/ep1.mp3", res.AudioURL)
	assert.Equal(t, "audio/ep1.mp3", res.Key)
	assert.Equal(t, script.LabelDelimited, res.Tier)
	assert.Equal(t, 4, res.Utterances)
	assert.Equal(t, []State{
		StateReceived, StateCleaned, StateLengthBounded, StateSegmented,
		StateSynthesizing, StateAssembling, StatePublished,
	}, states(res.Transitions))

	body := string(h.store.puts["audio/ep1.mp3"])
	assert.Equal(t, "<George|Welcome back. Today we read a paper on sparse attention.>"+
		"<Sarah|Thanks for having me. The core idea is simple.>"+
		"<George|Walk me through it.>"+
		"<Sarah|Each token attends to a small window plus a few global tokens.>", body)
	assert.EqualValues(t, len(body), res.SizeBytes)

	var prev float64
	for _, e := range rec.events {
		assert.GreaterOrEqual(t, e.Percent, prev, "progress moves forward: %s", e.Message)
		prev = e.Percent
	}
	final := rec.last()
	assert.Equal(t, progress.StageComplete, final.Stage)
	assert.Equal(t, res.AudioURL, final.AudioURL)
}

func TestGenerateAudioParallelKeepsOrder(t *testing.T) {
	h := newHarness(t, 4)
	var b strings.Builder
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			b.WriteString("Host: Question number " + string(rune('a'+i)) + " is next.\n")
		} else {
			b.WriteString("Expert: Answer number " + string(rune('a'+i)) + " follows.\n")
		}
	}

	res, err := h.orch.GenerateAudio(context.Background(), Request{Script: b.String(), EpisodeID: "ep2"})
	require.NoError(t, err)
	require.Equal(t, 20, res.Utterances)

	body := string(h.store.puts["audio/ep2.mp3"])
	for i := 0; i < 19; i++ {
		cur := strings.Index(body, "number "+string(rune('a'+i))+" ")
		next := strings.Index(body, "number "+string(rune('a'+i+1))+" ")
		assert.Less(t, cur, next, "segment %d precedes %d", i, i+1)
	}
}

func TestGenerateAudioInputErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		stage State
	}{
		{"empty script", Request{Script: "  \n", EpisodeID: "ep"}, StateReceived},
		{"missing id", Request{Script: labelled}, StateReceived},
		{"negative target", Request{Script: labelled, EpisodeID: "ep", TargetWords: -5}, StateReceived},
		{"nothing left after cleaning", Request{Script: "---\n## Notes\n***", EpisodeID: "ep"}, StateSegmented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1)
			_, err := h.orch.GenerateAudio(context.Background(), tt.req)

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, KindInput, pe.Kind)
			assert.Equal(t, tt.stage, pe.Stage)
			assert.Equal(t, -1, pe.Segment)
			assert.Empty(t, h.provider.calls)
			assert.Empty(t, h.store.puts)
		})
	}
}

func TestGenerateAudioSegmentFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.provider.failOn = "Walk me through"
	rec := &recorder{}

	_, err := h.orch.GenerateAudio(context.Background(), Request{Script: labelled, EpisodeID: "ep3", Progress: rec.callback})

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindProvider, pe.Kind)
	assert.Equal(t, StateSynthesizing, pe.Stage)
	assert.Equal(t, 2, pe.Segment)
	assert.ErrorContains(t, err, "voice unavailable")
	assert.Empty(t, h.store.puts, "nothing is published after a failed segment")
	assert.Equal(t, progress.StageFailed, rec.last().Stage)
}

func TestGenerateAudioUploadFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.store.err = errors.New("access denied")

	_, err := h.orch.GenerateAudio(context.Background(), Request{Script: labelled, EpisodeID: "ep4"})

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindProvider, pe.Kind)
	assert.Equal(t, StateAssembling, pe.Stage)
	assert.ErrorIs(t, err, assembly.ErrUpload)
	assert.Equal(t, KindProvider, KindOf(err))
}

func TestGenerateAudioScratchFailure(t *testing.T) {
	dir, err := tts.DefaultDirectory("elevenlabs")
	require.NoError(t, err)
	store := &memStore{}
	orch, err := New(Config{
		Provider:  &fakeProvider{},
		Directory: dir,
		Assembler: assembly.NewAssembler(store, filepath.Join(t.TempDir(), "missing"), nil, nil),
	})
	require.NoError(t, err)

	_, err = orch.GenerateAudio(context.Background(), Request{Script: labelled, EpisodeID: "ep5"})

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindResource, pe.Kind)
	assert.ErrorIs(t, err, assembly.ErrScratch)
	assert.Empty(t, store.puts)
}

func TestGenerateAudioTargetWords(t *testing.T) {
	h := newHarness(t, 1)
	res, err := h.orch.GenerateAudio(context.Background(), Request{Script: labelled, EpisodeID: "ep6", TargetWords: 8})
	require.NoError(t, err)

	var words int
	for _, c := range h.provider.calls {
		words += len(strings.Fields(c.Text))
	}
	assert.LessOrEqual(t, words, 8)
	assert.Positive(t, res.Utterances)
}

func TestGenerateAudioExplicitVoices(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.orch.GenerateAudio(context.Background(), Request{
		Script:    labelled,
		EpisodeID: "ep7",
		Voices:    tts.Explicit{HostKey: "daniel", ExpertKey: "lily"},
	})
	require.NoError(t, err)

	require.Len(t, h.provider.calls, 4)
	assert.Equal(t, "Daniel", h.provider.calls[0].Voice.DisplayName)
	assert.Equal(t, "Lily", h.provider.calls[1].Voice.DisplayName)
	assert.Equal(t, "", h.provider.calls[0].PreviousText)
	assert.NotEmpty(t, h.provider.calls[1].PreviousText)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

type fakeGenerator struct {
	transcript string
	err        error
	got        script.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req script.Request) (string, error) {
	g.got = req
	return g.transcript, g.err
}

func paperOf(words int) *ingest.Paper {
	text := strings.TrimSpace(strings.Repeat("attention ", words))
	return &ingest.Paper{Title: "Sparse Attention", Text: text, Source: "paper.txt", WordCount: words}
}

func TestProduce(t *testing.T) {
	h := newHarness(t, 2)
	gen := &fakeGenerator{transcript: labelled}
	rec := &recorder{}
	var gotTranscript string

	p := &Producer{
		Ingest:       func(context.Context, string) (*ingest.Paper, error) { return paperOf(300), nil },
		Generator:    gen,
		Orchestrator: h.orch,
	}
	res, err := p.Produce(context.Background(), EpisodeRequest{
		EpisodeID:      "ep8",
		Source:         "paper.txt",
		TechnicalLevel: "advanced",
		MaxInputChars:  100,
		Progress:       rec.callback,
		OnTranscript:   func(_ *ingest.Paper, tr string) { gotTranscript = tr },
	})
	require.NoError(t, err)

	assert.Equal(t, "Sparse Attention", res.Title)
	assert.Equal(t, labelled, gotTranscript)
	assert.Equal(t, "advanced", gen.got.TechnicalLevel)
	assert.Contains(t, gen.got.Text, "omitted", "long sources are truncated before prompting")
	assert.Equal(t, "https://cdn.example.com/audio/ep8.mp3", res.AudioURL)

	var prev float64
	for _, e := range rec.events {
		assert.GreaterOrEqual(t, e.Percent, prev, e.Message)
		prev = e.Percent
	}
	assert.Equal(t, progress.StageComplete, rec.last().Stage)
}

func TestProduceErrors(t *testing.T) {
	h := newHarness(t, 1)

	short := &Producer{
		Ingest:       func(context.Context, string) (*ingest.Paper, error) { return paperOf(20), nil },
		Generator:    &fakeGenerator{transcript: labelled},
		Orchestrator: h.orch,
	}
	_, err := short.Produce(context.Background(), EpisodeRequest{EpisodeID: "a", Source: "x.txt"})
	assert.Equal(t, KindInput, KindOf(err))
	assert.ErrorContains(t, err, "too short")

	genFail := &Producer{
		Ingest:       func(context.Context, string) (*ingest.Paper, error) { return paperOf(300), nil },
		Generator:    &fakeGenerator{err: errors.New("rate limited")},
		Orchestrator: h.orch,
	}
	_, err = genFail.Produce(context.Background(), EpisodeRequest{EpisodeID: "b", Source: "x.txt"})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindProvider, pe.Kind)
	assert.Equal(t, StateScripting, pe.Stage)

	_, err = genFail.Produce(context.Background(), EpisodeRequest{EpisodeID: "c"})
	assert.Equal(t, KindInput, KindOf(err))
	assert.Empty(t, h.store.puts)
}
