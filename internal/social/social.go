// Package social is the posting boundary: mention text generation and a
// Poster that accepts text and returns a post identifier. Text generation
// quality is out of scope here; the templates just bind the facts.
package social

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PostCharLimit is the hard ceiling on outgoing post length.
const PostCharLimit = 280

// Poster publishes a post and returns its identifier.
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

// MentionWriter produces the text for a supporter shout-out. An empty
// string means nothing should be posted.
type MentionWriter interface {
	Mention(handle string, amountSOL, usdValue decimal.Decimal) string
}

// Truncate shortens text to at most limit characters, cutting at the last
// whitespace before the limit and appending an ellipsis. Limits shorter
// than the ellipsis return the ellipsis alone.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return "..."
	}
	cut := string(runes[:limit-3])
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// ---------------------------------------------------------------------------
// Template mention writer
// ---------------------------------------------------------------------------

var mentionTemplates = []string{
	"%s just sent %s SOL ($%s) to the treasury. noted and appreciated",
	"treasury top-up: %s sent %s SOL ($%s). the machine keeps running",
	"%s dropped %s SOL ($%s) on us. runway extended",
}

// TemplateWriter fills mention templates with the transfer's facts.
type TemplateWriter struct {
	rng *rand.Rand
}

func NewTemplateWriter(seed int64) *TemplateWriter {
	return &TemplateWriter{rng: rand.New(rand.NewSource(seed))}
}

func (w *TemplateWriter) Mention(handle string, amountSOL, usdValue decimal.Decimal) string {
	if handle == "" {
		return ""
	}
	tpl := mentionTemplates[w.rng.Intn(len(mentionTemplates))]
	text := fmt.Sprintf(tpl, handle, amountSOL.String(), usdValue.StringFixed(2))
	return Truncate(text, PostCharLimit)
}

// ---------------------------------------------------------------------------
// Posters
// ---------------------------------------------------------------------------

// LogPoster writes posts to the log instead of a real network. It stands in
// wherever no posting credentials are configured, and in dry runs.
type LogPoster struct {
	log zerolog.Logger
}

func NewLogPoster(log zerolog.Logger) *LogPoster {
	return &LogPoster{log: log.With().Str("component", "poster").Logger()}
}

func (p *LogPoster) Post(_ context.Context, text string) (string, error) {
	id := uuid.New().String()
	p.log.Info().Str("post_id", id).Str("text", text).Msg("post published (log only)")
	return id, nil
}

// RecordingPoster captures posts for tests.
type RecordingPoster struct {
	mu    sync.Mutex
	Posts []string
	Err   error
}

func (p *RecordingPoster) Post(_ context.Context, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.Posts = append(p.Posts, text)
	return uuid.New().String(), nil
}

var (
	_ Poster        = (*LogPoster)(nil)
	_ Poster        = (*RecordingPoster)(nil)
	_ MentionWriter = (*TemplateWriter)(nil)
)
