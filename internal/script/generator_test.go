package script

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/papercast/internal/ingest"
)

type fakeConverse struct {
	calls int
	input *bedrockruntime.ConverseInput
	text  string
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.calls++
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: f.text}},
		}},
	}, nil
}

func TestNovaGeneratorGenerate(t *testing.T) {
	fake := &fakeConverse{text: "<scratchpad>plan</scratchpad>\n```\nHost: Hi.\nExpert: Hello.\n```"}
	gen := NewNovaGeneratorWithClient("nova-lite", fake)

	got, err := gen.Generate(context.Background(), Request{
		Paper:          &ingest.Paper{Title: "Attention Is All You Need", Authors: []string{"Vaswani", "Shazeer"}},
		TechnicalLevel: LevelAdvanced,
	})

	require.NoError(t, err)
	assert.Equal(t, "Host: Hi.\nExpert: Hello.", got)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "us.amazon.nova-2-lite-v1:0", *fake.input.ModelId)
}

func TestNovaGeneratorCancelled(t *testing.T) {
	fake := &fakeConverse{err: errors.New("boom")}
	gen := NewNovaGeneratorWithClient("nova-lite", fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Generate(ctx, Request{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.calls)
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := buildUserPrompt(Request{
		Paper: &ingest.Paper{
			Title:    "Protein Folding at Scale",
			Authors:  []string{"A. Author", "B. Author"},
			Abstract: "We fold proteins.",
		},
		Text:           "Full text here.",
		TechnicalLevel: LevelBeginner,
		CustomTopics:   []string{"limitations", "compute cost"},
		TargetWords:    1500,
	})

	assert.Contains(t, prompt, "Paper Title: Protein Folding at Scale")
	assert.Contains(t, prompt, "Authors: A. Author, B. Author")
	assert.Contains(t, prompt, "Abstract: We fold proteins.")
	assert.Contains(t, prompt, "limitations; compute cost")
	assert.Contains(t, prompt, "about 1500 words")
	assert.Contains(t, prompt, "no background in the field")
	assert.Contains(t, prompt, "SOURCE MATERIAL:\nFull text here.")
}

func TestBuildSystemPromptPersonas(t *testing.T) {
	sys := buildSystemPrompt(Request{HostPersona: "storyteller", ExpertPersona: "unknown"})
	assert.Contains(t, sys, "Alex Beaumont")
	assert.Contains(t, sys, "Dr. Sam Rivera")
	assert.Contains(t, sys, "Host: [dialogue]")
}

func TestNewGeneratorUnknownModel(t *testing.T) {
	_, err := NewGenerator("gpt-2", "")
	assert.ErrorContains(t, err, "unknown script model")
}

func TestLevels(t *testing.T) {
	assert.True(t, IsValidLevel(LevelIntermediate))
	assert.False(t, IsValidLevel("expert"))
	assert.Equal(t, []string{"curious", "storyteller"}, PersonaNames("host"))
	assert.Equal(t, []string{"practitioner", "researcher"}, PersonaNames("expert"))
}
