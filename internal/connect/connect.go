// Package connect provides the connector framework for the timeline.
//
// Connectors pull posts from external sources (export files, feeds) into the
// post store. They deliver raw text plus whatever source tag the origin
// claims; classification happens later, on read, in package extract.
package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hurttlocker/timeline/internal/extract"
)

// Provider defines the interface that all connectors must implement.
type Provider interface {
	// Name returns the unique provider identifier (e.g. "export").
	Name() string

	// DisplayName returns a human-readable name.
	DisplayName() string

	// ValidateConfig checks whether the provided JSON config is valid.
	// Returns nil if config is valid, error with actionable message otherwise.
	ValidateConfig(config json.RawMessage) error

	// DefaultConfig returns a template config with placeholder values.
	// Used by `timeline connect add`.
	DefaultConfig() json.RawMessage

	// Fetch retrieves posts from the source. If since is non-nil the
	// provider may return only posts changed after it.
	Fetch(ctx context.Context, cfg json.RawMessage, since *time.Time) ([]Record, error)
}

// Record is a single post fetched from a provider.
type Record struct {
	// Text is the post body, untouched.
	Text string

	// Source is the origin's claimed source tag. It is a hint only.
	Source extract.SourceTag

	// ExternalID is the provider-specific post id. The stored post id is
	// "<provider>:<ExternalID>".
	ExternalID string

	// Timestamp is when the post was published; zero if unknown.
	Timestamp time.Time

	// ProviderMeta holds provider-specific metadata as JSON.
	ProviderMeta json.RawMessage
}

// Post converts r into a RawPost for classification.
func (r Record) Post() extract.RawPost {
	return extract.RawPost{Text: r.Text, Source: r.Source}
}

// Connector represents a configured and registered connector instance.
type Connector struct {
	ID              int64           `json:"id"`
	Provider        string          `json:"provider"`
	Config          json.RawMessage `json:"config"`
	Enabled         bool            `json:"enabled"`
	LastSyncAt      *time.Time      `json:"last_sync_at,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	RecordsImported int64           `json:"records_imported"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SyncResult holds the outcome of a connector sync operation.
type SyncResult struct {
	Provider        string                   `json:"provider"`
	RecordsFetched  int                      `json:"records_fetched"`
	RecordsImported int                      `json:"records_imported"`
	RecordsSkipped  int                      `json:"records_skipped"`
	RecordsFailed   int                      `json:"records_failed,omitempty"`
	Categories      map[extract.Category]int `json:"categories,omitempty"`
	HintMismatches  int                      `json:"hint_mismatches,omitempty"`
	Duration        time.Duration            `json:"duration"`
	Error           string                   `json:"error,omitempty"`
	SyncedAt        time.Time                `json:"synced_at"`
}

// Registry holds all registered providers. Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry. Panics on duplicate names.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		panic(fmt.Sprintf("connect: duplicate provider registration: %s", name))
	}
	r.providers[name] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global provider registry with the built-in
// providers registered.
var DefaultRegistry = func() *Registry {
	r := NewRegistry()
	r.Register(&ExportProvider{})
	return r
}()
