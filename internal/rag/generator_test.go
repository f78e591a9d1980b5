package rag

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctalk/doctalk/internal/cache"
	"github.com/doctalk/doctalk/internal/conversation"
	"github.com/doctalk/doctalk/internal/llm"
	"github.com/doctalk/doctalk/internal/models"
)

func TestBuildMessagesOrdering(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, DefaultGeneratorConfig(), quietLogger())

	history := []conversation.Turn{
		{Question: "first question", Answer: "first answer"},
		{Question: "second question", Answer: "second answer"},
	}
	messages := g.BuildMessages("[Context 1] (Score: 0.90, Source: a.txt)\nsome passage", history, "current question")

	require.Len(t, messages, 6)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "some passage")
	assert.Equal(t, "first question", messages[1].Content)
	assert.Equal(t, llm.RoleAssistant, messages[2].Role)
	assert.Equal(t, "second question", messages[3].Content)
	assert.Equal(t, "current question", messages[5].Content)
	assert.Equal(t, llm.RoleUser, messages[5].Role)
}

func TestBuildMessagesTrimsHistory(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.PromptTurns = 2
	g := NewGenerator(&fakeLLM{}, cfg, quietLogger())

	var history []conversation.Turn
	for i := 0; i < 5; i++ {
		history = append(history, conversation.Turn{Question: string(rune('a' + i)), Answer: "x"})
	}
	messages := g.BuildMessages("ctx", history, "q")

	// system + 2 trailing turns + question
	require.Len(t, messages, 6)
	assert.Equal(t, "d", messages[1].Content)
	assert.Equal(t, "e", messages[3].Content)
}

func TestGenerateEmptyCompletionFails(t *testing.T) {
	g := NewGenerator(&fakeLLM{content: ""}, DefaultGeneratorConfig(), quietLogger())

	_, err := g.Generate(context.Background(), "ctx", nil, "q")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindGeneration))
}

func TestGenerateCachesCompletions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClientFromAddr(mr.Addr())
	defer client.Close()
	results := cache.NewResultCache(client, time.Hour, quietLogger())

	provider := &fakeLLM{content: "the answer"}
	g := NewGenerator(provider, DefaultGeneratorConfig(), quietLogger()).WithCache(results, time.Hour)

	first, err := g.Generate(context.Background(), "ctx", nil, "q")
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), "ctx", nil, "q")
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, provider.calls)

	// a different question misses the cache
	_, err = g.Generate(context.Background(), "ctx", nil, "another q")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}
