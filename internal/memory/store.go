// Package memory tracks published posts and their engagement metrics so
// reporting can tell which posts actually landed.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// refreshInterval is how stale a post's metrics may get before a refresh
// is due.
const refreshInterval = 4 * time.Hour

// Post is one published post and its last known engagement numbers.
type Post struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	Type        string          `json:"type"`
	PostedAt    time.Time       `json:"posted_at"`
	Likes       int             `json:"likes"`
	Retweets    int             `json:"retweets"`
	Replies     int             `json:"replies"`
	Impressions int             `json:"impressions"`
	Score       decimal.Decimal `json:"score"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Metrics is an engagement reading for one post.
type Metrics struct {
	Likes       int
	Retweets    int
	Replies     int
	Impressions int
}

// Score weighs retweets highest: they spread, likes and replies follow,
// impressions count for almost nothing individually.
func (m Metrics) Score() decimal.Decimal {
	return decimal.NewFromInt(int64(3 * m.Likes)).
		Add(decimal.NewFromInt(int64(5 * m.Retweets))).
		Add(decimal.NewFromInt(int64(2 * m.Replies))).
		Add(decimal.NewFromInt(int64(m.Impressions)).Mul(decimal.RequireFromString("0.1")))
}

// Store is the durable post record, keyed by post identifier. The whole
// file is rewritten on every mutation, via temp file and rename.
type Store struct {
	mu    sync.Mutex
	path  string
	posts map[string]*Post
	now   func() time.Time
}

func Open(path string) (*Store, error) {
	s := &Store{path: path, posts: make(map[string]*Post), now: time.Now}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read store: %w", err)
	}

	if err := json.Unmarshal(data, &s.posts); err != nil {
		return nil, fmt.Errorf("memory: parse store %s: %w", path, err)
	}
	return s, nil
}

// Record registers a freshly published post with zeroed metrics. A post
// identifier already on record is left untouched.
func (s *Store) Record(id, text, postType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; ok {
		return nil
	}
	s.posts[id] = &Post{
		ID:       id,
		Text:     text,
		Type:     postType,
		PostedAt: s.now().UTC(),
		Score:    decimal.Zero,
	}
	return s.persist()
}

// ApplyMetrics updates a post's engagement numbers and recomputes its score.
func (s *Store) ApplyMetrics(id string, m Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return fmt.Errorf("memory: unknown post %s", id)
	}
	post.Likes = m.Likes
	post.Retweets = m.Retweets
	post.Replies = m.Replies
	post.Impressions = m.Impressions
	post.Score = m.Score()
	post.FetchedAt = s.now().UTC()
	return s.persist()
}

// NeedsRefresh lists posts whose metrics were never fetched or have gone
// stale.
func (s *Store) NeedsRefresh() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().UTC().Add(-refreshInterval)
	var due []Post
	for _, post := range s.posts {
		if post.FetchedAt.IsZero() || post.FetchedAt.Before(cutoff) {
			due = append(due, *post)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].PostedAt.Before(due[j].PostedAt) })
	return due
}

// TopPerformers returns up to n posts ordered by score, best first.
func (s *Store) TopPerformers(n int) []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]Post, 0, len(s.posts))
	for _, post := range s.posts {
		all = append(all, *post)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Score.GreaterThan(all[j].Score) })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Get looks up a post by identifier.
func (s *Store) Get(id string) (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return Post{}, false
	}
	return *post, true
}

func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("memory: create store dir: %w", err)
	}

	data, err := json.MarshalIndent(s.posts, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("memory: replace store: %w", err)
	}
	return nil
}
