package social

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 280))

	long := strings.Repeat("word ", 100) // 500 chars
	out := Truncate(long, 280)
	assert.LessOrEqual(t, len(out), 280)
	assert.True(t, strings.HasSuffix(out, "..."))
	// Cut lands on a word boundary, not mid-word.
	assert.False(t, strings.HasSuffix(strings.TrimSuffix(out, "..."), "wor"))

	// Exactly at the limit passes through untouched.
	exact := strings.Repeat("a", 280)
	assert.Equal(t, exact, Truncate(exact, 280))

	// No whitespace to cut at: hard cut.
	solid := strings.Repeat("a", 300)
	out = Truncate(solid, 280)
	assert.Equal(t, 280, len(out))
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestTruncateMultibyte(t *testing.T) {
	// The cut must land between runes, never inside one.
	long := strings.Repeat("héllo ", 100)
	out := Truncate(long, 280)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.LessOrEqual(t, len([]rune(out)), 280)
	for _, r := range out {
		assert.NotEqual(t, '�', r)
	}

	// A limit counts runes, so wide characters fit by count not by byte.
	wide := strings.Repeat("界", 10)
	assert.Equal(t, wide, Truncate(wide, 10))

	assert.Equal(t, "...", Truncate("anything at all", 2))
}

func TestTemplateWriterMention(t *testing.T) {
	w := NewTemplateWriter(1)

	text := w.Mention("@trader_99", decimal.RequireFromString("0.5"), decimal.NewFromInt(75))
	require.NotEmpty(t, text)
	assert.Contains(t, text, "@trader_99")
	assert.Contains(t, text, "0.5")
	assert.Contains(t, text, "75.00")
	assert.LessOrEqual(t, len(text), PostCharLimit)

	assert.Empty(t, w.Mention("", decimal.NewFromInt(1), decimal.NewFromInt(1)))
}

func TestLogPoster(t *testing.T) {
	p := NewLogPoster(zerolog.Nop())
	id, err := p.Post(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestRecordingPoster(t *testing.T) {
	p := &RecordingPoster{}
	id, err := p.Post(context.Background(), "one")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []string{"one"}, p.Posts)

	p.Err = assert.AnError
	_, err = p.Post(context.Background(), "two")
	assert.Error(t, err)
	assert.Len(t, p.Posts, 1)
}
