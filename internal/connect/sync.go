package connect

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hurttlocker/timeline/internal/extract"
	"github.com/hurttlocker/timeline/internal/store"
)

// SyncEngine moves connector records into the post store.
type SyncEngine struct {
	registry  *Registry
	connStore *ConnectorStore
	posts     store.Store
	log       zerolog.Logger
}

// NewSyncEngine creates a sync engine backed by the given stores.
func NewSyncEngine(registry *Registry, connStore *ConnectorStore, posts store.Store, log zerolog.Logger) *SyncEngine {
	return &SyncEngine{
		registry:  registry,
		connStore: connStore,
		posts:     posts,
		log:       log.With().Str("component", "sync").Logger(),
	}
}

// SyncAll runs sync for all enabled connectors.
func (se *SyncEngine) SyncAll(ctx context.Context) ([]SyncResult, error) {
	connectors, err := se.connStore.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("listing connectors: %w", err)
	}

	var results []SyncResult
	for _, c := range connectors {
		results = append(results, se.SyncOne(ctx, c))
	}
	return results, nil
}

// SyncProvider runs sync for a specific provider by name.
func (se *SyncEngine) SyncProvider(ctx context.Context, providerName string) (SyncResult, error) {
	c, err := se.connStore.Get(ctx, providerName)
	if err != nil {
		return SyncResult{Provider: providerName, Error: err.Error()}, err
	}
	if !c.Enabled {
		return SyncResult{Provider: providerName, Error: "connector is disabled"}, fmt.Errorf("connector %q is disabled", providerName)
	}
	return se.SyncOne(ctx, c), nil
}

// SyncOne runs sync for a single connector and records the outcome on it.
func (se *SyncEngine) SyncOne(ctx context.Context, c *Connector) SyncResult {
	start := time.Now()
	log := se.log.With().Str("provider", c.Provider).Logger()

	fail := func(msg string) SyncResult {
		log.Error().Msg(msg)
		_ = se.connStore.RecordSyncError(ctx, c.Provider, msg)
		return SyncResult{Provider: c.Provider, SyncedAt: start, Error: msg, Duration: time.Since(start)}
	}

	provider := se.registry.Get(c.Provider)
	if provider == nil {
		return fail(fmt.Sprintf("provider %q not registered", c.Provider))
	}

	log.Debug().Dur("since_last_sync", syncAge(c, start)).Msg("fetching")
	records, err := provider.Fetch(ctx, c.Config, c.LastSyncAt)
	if err != nil {
		return fail(fmt.Sprintf("fetch failed: %v", err))
	}

	result := se.Import(ctx, c.Provider, records)
	result.SyncedAt = start

	if err := se.connStore.RecordSyncSuccess(ctx, c.Provider, int64(result.RecordsImported)); err != nil {
		result.Error = fmt.Sprintf("sync succeeded but state update failed: %v", err)
	}
	result.Duration = time.Since(start)
	return result
}

// Import stores records under the given provider name without touching
// connector state. A failing record is logged and counted, not fatal.
func (se *SyncEngine) Import(ctx context.Context, provider string, records []Record) SyncResult {
	start := time.Now()
	result := SyncResult{
		Provider:       provider,
		RecordsFetched: len(records),
		Categories:     make(map[extract.Category]int),
		SyncedAt:       start,
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			result.Error = err.Error()
			break
		}

		added, source, err := se.importRecord(ctx, provider, rec)
		if err != nil {
			se.log.Warn().Err(err).Str("provider", provider).Str("external_id", rec.ExternalID).Msg("import failed")
			result.RecordsFailed++
			continue
		}
		if added {
			result.RecordsImported++
		} else {
			result.RecordsSkipped++
		}

		post := rec.Post()
		post.Source = source
		r := extract.ClassifyPost(post)
		result.Categories[r.Category]++
		if r.HintMismatch() {
			result.HintMismatches++
			se.log.Debug().
				Str("external_id", rec.ExternalID).
				Str("source", string(source)).
				Str("category", string(r.Category)).
				Msg("source tag disagrees with post text")
		}
	}

	result.Duration = time.Since(start)
	se.log.Info().
		Str("provider", provider).
		Int("fetched", result.RecordsFetched).
		Int("imported", result.RecordsImported).
		Int("skipped", result.RecordsSkipped).
		Int("failed", result.RecordsFailed).
		Dur("took", result.Duration).
		Msg("import finished")
	return result
}

// importRecord writes one record as a post. It returns false when an
// identical post was already stored, along with the source tag the post
// ends up with (an untagged record keeps the stored tag).
func (se *SyncEngine) importRecord(ctx context.Context, provider string, rec Record) (bool, extract.SourceTag, error) {
	if rec.ExternalID == "" {
		return false, rec.Source, fmt.Errorf("record has no external id")
	}

	post := &store.Post{
		ID:     PostID(provider, rec.ExternalID),
		Source: string(rec.Source),
		Text:   rec.Text,
	}
	if !rec.Timestamp.IsZero() {
		ts := rec.Timestamp.UTC()
		post.PostedAt = &ts
	}

	added, err := se.posts.AddPost(ctx, post)
	if err != nil {
		return false, rec.Source, fmt.Errorf("storing post: %w", err)
	}
	return added, extract.SourceTag(post.Source), nil
}

// PostID is the store id for a record from provider.
func PostID(provider, externalID string) string {
	return provider + ":" + externalID
}
