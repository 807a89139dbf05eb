package results

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alterity-ai/alterity/internal/store"
	"github.com/alterity-ai/alterity/pkg/models"
	"github.com/google/uuid"
)

// Update is one message on a subscriber stream. Every update carries the full
// aggregate state so a consumer can render from any single message. Result is
// set for live updates when the full row could be fetched; it is nil on the
// initial replay update and on aggregate-only reconcile updates after a
// listener reconnect. A non-nil Err terminates the stream.
type Update struct {
	Result    *models.Result         `json:"result,omitempty"`
	Aggregate models.AggregateUpdate `json:"aggregate"`
	Err       error                  `json:"-"`
}

// Service serves result snapshots and live aggregate streams for runs.
type Service struct {
	store  store.Store
	broker *Broker
	logger *slog.Logger
}

func NewService(st store.Store, broker *Broker, logger *slog.Logger) *Service {
	return &Service{store: st, broker: broker, logger: logger}
}

// Snapshot returns all results recorded for the run so far together with the
// aggregate computed over them. Returns store.ErrNotFound for unknown runs.
func (s *Service) Snapshot(ctx context.Context, runID uuid.UUID) ([]*models.Result, models.AggregateUpdate, error) {
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return nil, models.AggregateUpdate{}, err
	}
	rows, err := s.store.ListResultsByRun(ctx, runID)
	if err != nil {
		return nil, models.AggregateUpdate{}, err
	}
	agg := models.NewAggregateUpdate()
	for _, r := range rows {
		agg.Add(r.ProbeID, r.UsageCost)
	}
	return rows, agg, nil
}

// Subscribe opens a live aggregate stream for the run. The first update
// replays everything already recorded; subsequent updates arrive as workers
// insert results. The channel closes when ctx is cancelled or after a
// terminal error update. Returns store.ErrNotFound for unknown runs.
func (s *Service) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan Update, error) {
	// Attach before the snapshot read so no insert falls in the gap between
	// the two. Events already covered by the snapshot are deduplicated below.
	sub, err := s.broker.subscribe(runID)
	if err != nil {
		return nil, err
	}

	rows, agg, err := s.Snapshot(ctx, runID)
	if err != nil {
		s.broker.unsubscribe(runID, sub)
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for _, r := range rows {
		seen[r.ID] = struct{}{}
	}

	out := make(chan Update)
	go s.stream(ctx, runID, sub, agg, seen, out)
	return out, nil
}

func (s *Service) stream(ctx context.Context, runID uuid.UUID, sub *subscription, agg models.AggregateUpdate, seen map[uuid.UUID]struct{}, out chan<- Update) {
	defer close(out)
	defer s.broker.unsubscribe(runID, sub)

	// Initial update carries the replayed aggregate, even when empty.
	select {
	case out <- Update{Aggregate: agg.Clone()}:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case ev := <-sub.out:
			if ev.err != nil {
				select {
				case out <- Update{Err: ev.err}:
				case <-ctx.Done():
				}
				return
			}
			if ev.resync {
				// The listener reconnected; rows committed during the outage
				// were never notified. Re-read the table and fold in whatever
				// the seen set does not already cover.
				if !s.reconcile(ctx, runID, &agg, seen) {
					continue
				}
				select {
				case out <- Update{Aggregate: agg.Clone()}:
				case <-ctx.Done():
					return
				}
				continue
			}
			if _, dup := seen[ev.ev.ID]; dup {
				continue
			}
			seen[ev.ev.ID] = struct{}{}
			agg.Add(ev.ev.ProbeID, ev.ev.UsageCost)

			update := Update{Aggregate: agg.Clone()}
			// The notification payload omits the response body; fetch the
			// full row for subscribers that render individual results. The
			// aggregate stands on its own if the fetch fails.
			if result, err := s.store.GetResult(ctx, ev.ev.ID); err == nil {
				update.Result = result
			} else if !errors.Is(err, context.Canceled) {
				s.logger.Warn("result fetch for stream failed", "result_id", ev.ev.ID, "error", err)
			}

			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// reconcile re-reads the run's results and folds rows missing from the seen
// set into the aggregate. Reports whether anything new was found. A failed
// read leaves the aggregate as is; the next resync retries.
func (s *Service) reconcile(ctx context.Context, runID uuid.UUID, agg *models.AggregateUpdate, seen map[uuid.UUID]struct{}) bool {
	rows, err := s.store.ListResultsByRun(ctx, runID)
	if err != nil {
		s.logger.Warn("resync read failed", "run_id", runID, "error", err)
		return false
	}
	added := false
	for _, r := range rows {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		agg.Add(r.ProbeID, r.UsageCost)
		added = true
	}
	return added
}
