package tracker

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Tracker fetches show details for a list of queries
type Tracker struct {
	api    ShowAPI
	logger zerolog.Logger
}

// New creates a new tracker
func New(api ShowAPI, logger zerolog.Logger) *Tracker {
	return &Tracker{
		api:    api,
		logger: logger,
	}
}

// FetchAll fetches every show concurrently and returns one result per query,
// in input order. Queries without an ID have it resolved by name and written
// back into the slice. A failing show never stops the others.
func (t *Tracker) FetchAll(ctx context.Context, queries []Query) []Result {
	results := make([]Result, len(queries))
	if len(queries) == 0 {
		return results
	}

	// No limit here: the client's gate decides how many requests actually run
	var g errgroup.Group

	for i := range queries {
		g.Go(func() error {
			results[i] = t.fetch(ctx, &queries[i])
			return nil // Don't stop on individual errors
		})
	}

	_ = g.Wait()

	var failed int
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	t.logger.Debug().
		Int("shows", len(results)).
		Int("failed", failed).
		Msg("Fetched show details")

	return results
}

// fetch resolves and fetches a single show. Each goroutine owns exactly one query.
func (t *Tracker) fetch(ctx context.Context, query *Query) Result {
	if query.ID == 0 {
		if query.Name == "" {
			return t.failed(*query, ErrNoIdentifier)
		}

		id, err := t.api.FindTVID(ctx, query.Name)
		if err != nil {
			return t.failed(*query, err)
		}
		query.ID = id
	}

	show, err := t.api.GetTV(ctx, query.ID)
	if err != nil {
		return t.failed(*query, err)
	}

	return Result{Query: *query, Show: show}
}

func (t *Tracker) failed(query Query, err error) Result {
	t.logger.Warn().
		Err(err).
		Str("show", query.String()).
		Msg("Failed to fetch show")

	return Result{Query: query, Err: err}
}
