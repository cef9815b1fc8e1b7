package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spendwise/moneytalk/internal/bank"
)

// ErrSyncTimeout is returned when the upstream keeps reporting "not ready"
// (empty cursor) past the configured attempt limit.
var ErrSyncTimeout = errors.New("transaction sync timed out waiting for upstream")

const (
	// DefaultNotReadyBackoff is the wait between retries of a cursor the
	// upstream has not finished indexing yet.
	DefaultNotReadyBackoff = 2 * time.Second

	// DefaultMaxNotReadyRetries bounds those retries so a never-ready
	// upstream cannot hang a request forever.
	DefaultMaxNotReadyRetries = 30
)

// Source is the single upstream operation the fetcher needs. bank.Client
// satisfies it.
type Source interface {
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*bank.SyncPage, error)
}

// Result holds the accumulated deltas of one complete sync, in page-arrival
// order.
type Result struct {
	Added    []bank.Transaction
	Modified []bank.Transaction
	Removed  []string

	// NextCursor is the final cursor returned by the upstream. It is not
	// persisted yet; a future revision should store it per user so each
	// sync does not restart from the beginning of history.
	NextCursor string
}

// Fetcher pulls the complete set of pending transaction deltas from the
// aggregator using its cursor-based sync protocol. Pages are fetched strictly
// sequentially because each page's cursor depends on the previous response.
type Fetcher struct {
	source  Source
	backoff time.Duration
	retries int
	log     zerolog.Logger
}

// NewFetcher creates a Fetcher. A backoff of zero and retries of zero fall
// back to the package defaults.
func NewFetcher(source Source, backoff time.Duration, retries int, log zerolog.Logger) *Fetcher {
	if backoff <= 0 {
		backoff = DefaultNotReadyBackoff
	}
	if retries <= 0 {
		retries = DefaultMaxNotReadyRetries
	}
	return &Fetcher{
		source:  source,
		backoff: backoff,
		retries: retries,
		log:     log,
	}
}

// FetchAll iterates the delta stream from the given cursor (empty for start
// of history) until the upstream reports no more pages.
//
// When a page comes back with an empty next cursor the upstream has not
// finished preparing transactions; the fetcher waits and re-issues the same
// cursor, discarding that page's record lists. Any other failure aborts the
// whole sync with no partial result.
func (f *Fetcher) FetchAll(ctx context.Context, accessToken, cursor string) (*Result, error) {
	result := &Result{}
	notReady := 0

	for hasMore := true; hasMore; {
		page, err := f.source.SyncTransactions(ctx, accessToken, cursor)
		if err != nil {
			return nil, fmt.Errorf("FetchAll: %w", err)
		}

		if page.NextCursor == "" {
			notReady++
			if notReady > f.retries {
				return nil, ErrSyncTimeout
			}

			f.log.Debug().
				Int("attempt", notReady).
				Msg("Upstream not ready, retrying same cursor")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.backoff):
			}
			continue
		}

		result.Added = append(result.Added, page.Added...)
		result.Modified = append(result.Modified, page.Modified...)
		result.Removed = append(result.Removed, page.Removed...)

		cursor = page.NextCursor
		result.NextCursor = page.NextCursor
		hasMore = page.HasMore
	}

	f.log.Info().
		Int("added", len(result.Added)).
		Int("modified", len(result.Modified)).
		Int("removed", len(result.Removed)).
		Msg("Transaction sync complete")

	return result, nil
}
