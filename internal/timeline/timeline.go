// Package timeline renders stored posts as classified timeline entries.
//
// Nothing derived is stored: every read re-runs extract.Classify on the
// post's text with its source tag as a hint.
package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hurttlocker/timeline/internal/extract"
	"github.com/hurttlocker/timeline/internal/store"
)

// ErrNotFound is returned by Get for an unknown post id.
var ErrNotFound = errors.New("post not found")

// breakdownPage is the page size Breakdown walks the store with.
const breakdownPage = 500

// maxMismatchIDs caps the ids listed in a Breakdown.
const maxMismatchIDs = 20

// Entry is a stored post with its classification.
type Entry struct {
	Post   *store.Post
	Result extract.Result
}

// MarshalJSON flattens the post fields next to the classification.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := struct {
		ID         string         `json:"id"`
		Source     string         `json:"source,omitempty"`
		PostedAt   *time.Time     `json:"posted_at,omitempty"`
		ImportedAt time.Time      `json:"imported_at"`
		Text       string         `json:"text"`
		Result     extract.Result `json:"result"`
	}{Result: e.Result}
	if e.Post != nil {
		out.ID = e.Post.ID
		out.Source = e.Post.Source
		out.PostedAt = e.Post.PostedAt
		out.ImportedAt = e.Post.ImportedAt
		out.Text = e.Post.Text
	}
	return json.Marshal(out)
}

// Breakdown summarises the classification of every stored post.
type Breakdown struct {
	Total          int                      `json:"total"`
	Categories     map[extract.Category]int `json:"categories"`
	Dialects       map[extract.Dialect]int  `json:"dialects"`
	HintMismatches int                      `json:"hint_mismatches"`
	MismatchIDs    []string                 `json:"mismatch_ids,omitempty"`
}

// Service reads the timeline from a post store.
type Service struct {
	store store.Store
}

// New returns a Service over st.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Classify classifies a stored post. A stored source tag the engine doesn't
// recognise is treated as unknown.
func Classify(p *store.Post) extract.Result {
	hint, err := extract.ParseSourceTag(p.Source)
	if err != nil {
		hint = extract.SourceUnknown
	}
	return extract.Classify(p.Text, hint)
}

func entries(posts []*store.Post) []Entry {
	out := make([]Entry, 0, len(posts))
	for _, p := range posts {
		out = append(out, Entry{Post: p, Result: Classify(p)})
	}
	return out
}

// Get returns the entry for one post id.
func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if p == nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return Entry{Post: p, Result: Classify(p)}, nil
}

// Recent returns the newest entries, optionally restricted to one source tag.
func (s *Service) Recent(ctx context.Context, limit int, source string) ([]Entry, error) {
	posts, err := s.store.ListPosts(ctx, store.ListOpts{Limit: limit, Source: source})
	if err != nil {
		return nil, err
	}
	return entries(posts), nil
}

// Search returns entries whose text contains query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	posts, err := s.store.SearchPosts(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return entries(posts), nil
}

// Breakdown classifies every stored post and counts the outcomes.
func (s *Service) Breakdown(ctx context.Context) (*Breakdown, error) {
	b := &Breakdown{
		Categories: make(map[extract.Category]int),
		Dialects:   make(map[extract.Dialect]int),
	}
	for _, c := range extract.Categories() {
		b.Categories[c] = 0
	}

	for offset := 0; ; offset += breakdownPage {
		posts, err := s.store.ListPosts(ctx, store.ListOpts{Limit: breakdownPage, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("listing posts: %w", err)
		}
		for _, p := range posts {
			r := Classify(p)
			b.Total++
			b.Categories[r.Category]++
			if r.Dialect != extract.DialectNone {
				b.Dialects[r.Dialect]++
			}
			if r.HintMismatch() {
				b.HintMismatches++
				if len(b.MismatchIDs) < maxMismatchIDs {
					b.MismatchIDs = append(b.MismatchIDs, p.ID)
				}
			}
		}
		if len(posts) < breakdownPage {
			break
		}
	}
	return b, nil
}
