package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sneakly/catalog/pkg/catalog"
	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/common/models"
	"github.com/sneakly/catalog/pkg/observability/metrics"
	"github.com/sneakly/catalog/pkg/pipeline"
	"github.com/sneakly/catalog/pkg/source"
	"github.com/sneakly/catalog/pkg/staging"
	"golang.org/x/sync/errgroup"
)

// after this many network failures in a row the producer gives up on the
// source instead of spinning on a dead page
const maxConsecutiveFetchFailures = 5

type RunStore interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	FindActive(ctx context.Context, domain string) (*Run, error)
	Transition(ctx context.Context, id string, from, to Status, updates map[string]interface{}) error
	List(ctx context.Context, filter models.RunFilter) ([]Run, error)
	FindStale(ctx context.Context, cutoff time.Time) ([]Run, error)
}

type RecordResolver interface {
	Resolve(ctx context.Context, rec source.RawRecord, dryRun bool) (staging.MatchResult, error)
}

type CatalogWriter interface {
	ApplyRefresh(ctx context.Context, productID string, fields catalog.RefreshFields, res *source.RefreshResult) (map[string]interface{}, error)
	LinkedSources(ctx context.Context, domain string, productIDs []string) (map[string]string, error)
}

type AdapterResolver interface {
	Resolve(domain string) (source.Adapter, error)
}

type PolicyChecker interface {
	Allowed(ctx context.Context, rawURL string) error
}

type FetchQueue interface {
	Do(ctx context.Context, domain string, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event models.RunEvent) error
}

type AuditSink interface {
	Record(ctx context.Context, action, entity, entityID, severity, actor string, details map[string]interface{})
}

type Options struct {
	Workers      int
	RunTimeout   time.Duration
	DefaultLimit int
}

// Scheduler owns the run lifecycle. It is the sole writer of run records and
// enforces one active run per source domain.
type Scheduler struct {
	runs     RunStore
	adapters AdapterResolver
	resolver RecordResolver
	catalog  CatalogWriter
	robots   PolicyChecker
	queue    FetchQueue
	events   EventPublisher
	auditor  AuditSink
	opts     Options

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(runs RunStore, adapters AdapterResolver, resolver RecordResolver, catalogWriter CatalogWriter, robots PolicyChecker, queue FetchQueue, events EventPublisher, auditor AuditSink, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 30 * time.Minute
	}
	return &Scheduler{
		runs:     runs,
		adapters: adapters,
		resolver: resolver,
		catalog:  catalogWriter,
		robots:   robots,
		queue:    queue,
		events:   events,
		auditor:  auditor,
		opts:     opts,
		active:   make(map[string]*activeRun),
	}
}

// StartRun begins a discovery run for the source domain. Fails with
// ConflictError while any non-terminal run exists for the same domain.
func (s *Scheduler) StartRun(ctx context.Context, req models.StartRunRequest, actor string) (*Run, error) {
	domain := strings.TrimSpace(strings.ToLower(req.SourceDomain))
	adapter, err := s.adapters.Resolve(domain)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeDiscovery
	}
	if mode != ModeDiscovery {
		return nil, pipeline.ValidationError{Reason: fmt.Errorf("mode %q requires target product ids, use the refresh operation", mode)}
	}
	if req.Limit != nil && *req.Limit <= 0 {
		return nil, pipeline.ValidationError{Reason: errors.New("limit must be positive when set")}
	}
	if actor == "" {
		return nil, pipeline.ValidationError{Reason: errors.New("actor identity required")}
	}

	run := &Run{
		ID:           uuid.New().String(),
		SourceDomain: domain,
		Mode:         mode,
		Status:       StatusPending,
		IsDryRun:     req.DryRun,
		LimitSet:     req.Limit,
		StartedAt:    time.Now().UTC(),
		UserID:       actor,
	}

	if err := s.register(ctx, run); err != nil {
		return nil, err
	}

	s.launch(run, func(runCtx context.Context) {
		s.executeDiscovery(runCtx, run, adapter)
	})
	return run, nil
}

// Refresh begins a targeted refresh run for known product ids, updating only
// the requested price/stock fields. Staging is bypassed entirely.
func (s *Scheduler) Refresh(ctx context.Context, req models.RefreshRequest, actor string) (*Run, error) {
	domain := strings.TrimSpace(strings.ToLower(req.SourceDomain))
	adapter, err := s.adapters.Resolve(domain)
	if err != nil {
		return nil, err
	}

	fields, err := catalog.ParseRefreshFields(req.Fields)
	if err != nil {
		return nil, err
	}
	if len(req.ProductIDs) == 0 {
		return nil, pipeline.ValidationError{Reason: errors.New("at least one product id required")}
	}
	if actor == "" {
		return nil, pipeline.ValidationError{Reason: errors.New("actor identity required")}
	}

	run := &Run{
		ID:           uuid.New().String(),
		SourceDomain: domain,
		Mode:         ModeTargetedRefresh,
		Status:       StatusPending,
		StartedAt:    time.Now().UTC(),
		UserID:       actor,
	}

	if err := s.register(ctx, run); err != nil {
		return nil, err
	}

	ids := append([]string(nil), req.ProductIDs...)
	s.launch(run, func(runCtx context.Context) {
		s.executeRefresh(runCtx, run, adapter, ids, fields)
	})
	return run, nil
}

// StopRun requests cooperative cancellation. Workers drain their in-flight
// items; the run reaches cancelled only once nothing is half-written.
func (s *Scheduler) StopRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	var entry *activeRun
	for _, a := range s.active {
		if a.id == runID {
			entry = a
			break
		}
	}
	s.mu.Unlock()

	if entry != nil {
		entry.cancel()
		return nil
	}

	// not running in this process: a leftover row from a previous instance
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if IsTerminal(run.Status) {
		return pipeline.ValidationError{Reason: fmt.Errorf("run %s already %s", runID, run.Status)}
	}
	now := time.Now().UTC()
	return s.runs.Transition(ctx, runID, run.Status, StatusCancelled, map[string]interface{}{
		"completed_at":     now,
		"duration_seconds": now.Sub(run.StartedAt).Seconds(),
	})
}

func (s *Scheduler) GetRun(ctx context.Context, runID string) (*Run, error) {
	return s.runs.Get(ctx, runID)
}

func (s *Scheduler) ListRuns(ctx context.Context, filter models.RunFilter) ([]Run, error) {
	return s.runs.List(ctx, filter)
}

// Wait blocks until the run's executor goroutine has drained. Used by
// shutdown and tests.
func (s *Scheduler) Wait(runID string) {
	s.mu.Lock()
	var entry *activeRun
	for _, a := range s.active {
		if a.id == runID {
			entry = a
			break
		}
	}
	s.mu.Unlock()
	if entry != nil {
		<-entry.done
	}
}

// FailOrphans marks non-terminal runs left behind by a crashed instance as
// failed so their source domains are not locked forever.
func (s *Scheduler) FailOrphans(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-2 * s.opts.RunTimeout)
	stale, err := s.runs.FindStale(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, run := range stale {
		s.mu.Lock()
		_, inProcess := s.active[run.SourceDomain]
		s.mu.Unlock()
		if inProcess {
			continue
		}

		now := time.Now().UTC()
		err := s.runs.Transition(ctx, run.ID, run.Status, StatusFailed, map[string]interface{}{
			"error_message":    "run orphaned, no live executor",
			"completed_at":     now,
			"duration_seconds": now.Sub(run.StartedAt).Seconds(),
		})
		if err != nil {
			logger.Log.WithError(err).WithField("run_id", run.ID).Warn("failed to fail orphaned run")
		}
	}
	return nil
}

// register reserves the domain lock, double-checks the database for a
// non-terminal run, and persists the pending run record.
func (s *Scheduler) register(ctx context.Context, run *Run) error {
	s.mu.Lock()
	if existing, ok := s.active[run.SourceDomain]; ok {
		s.mu.Unlock()
		return pipeline.ConflictError{Domain: run.SourceDomain, RunID: existing.id}
	}
	// cancel must be live before the entry is visible, a StopRun can race
	// run startup
	runCtx, cancel := context.WithTimeout(context.Background(), s.opts.RunTimeout)
	s.active[run.SourceDomain] = &activeRun{
		id:     run.ID,
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.mu.Unlock()

	release := func() {
		cancel()
		s.mu.Lock()
		delete(s.active, run.SourceDomain)
		s.mu.Unlock()
	}

	existing, err := s.runs.FindActive(ctx, run.SourceDomain)
	if err != nil {
		release()
		return err
	}
	if existing != nil {
		release()
		return pipeline.ConflictError{Domain: run.SourceDomain, RunID: existing.ID}
	}

	if err := s.runs.Create(ctx, run); err != nil {
		release()
		return err
	}
	return nil
}

func (s *Scheduler) launch(run *Run, exec func(ctx context.Context)) {
	s.mu.Lock()
	entry := s.active[run.SourceDomain]
	s.mu.Unlock()

	metrics.RunStarted()
	logger.Log.WithFields(map[string]interface{}{
		"run_id":  run.ID,
		"source":  run.SourceDomain,
		"mode":    run.Mode,
		"dry_run": run.IsDryRun,
	}).Info("run started")

	go func() {
		defer func() {
			entry.cancel()
			s.mu.Lock()
			delete(s.active, run.SourceDomain)
			s.mu.Unlock()
			close(entry.done)
		}()
		exec(entry.ctx)
	}()
}

type runCounters struct {
	found  atomic.Int64
	added  atomic.Int64
	errors atomic.Int64
}

// failEarly finalizes a run that never left pending. A stop request racing
// run startup counts as a cancellation, not a failure.
func (s *Scheduler) failEarly(runCtx context.Context, run *Run, counters *runCounters, err error) {
	if errors.Is(runCtx.Err(), context.Canceled) {
		s.finalize(run, StatusPending, StatusCancelled, counters, "")
		return
	}
	s.finalize(run, StatusPending, StatusFailed, counters, err.Error())
}

func (s *Scheduler) executeDiscovery(runCtx context.Context, run *Run, adapter source.Adapter) {
	counters := &runCounters{}

	if err := s.robots.Allowed(runCtx, adapter.DiscoveryURL()); err != nil {
		s.failEarly(runCtx, run, counters, err)
		return
	}

	it, err := adapter.Discover(runCtx)
	if err != nil {
		s.failEarly(runCtx, run, counters, err)
		return
	}

	if err := s.runs.Transition(context.Background(), run.ID, StatusPending, StatusRunning, nil); err != nil {
		s.finalize(run, StatusPending, StatusFailed, counters, err.Error())
		return
	}

	limit := s.opts.DefaultLimit
	if run.LimitSet != nil {
		limit = *run.LimitSet
	}

	records := make(chan source.RawRecord)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer close(records)
		consecutiveNetFailures := 0
		for {
			if limit > 0 && counters.found.Load() >= int64(limit) {
				return nil
			}

			var rec *source.RawRecord
			err := s.queue.Do(gctx, run.SourceDomain, func(fctx context.Context) error {
				next, nextErr := it.Next(fctx)
				if nextErr != nil {
					return nextErr
				}
				rec = next
				return nil
			})

			switch {
			case err == nil:
				consecutiveNetFailures = 0
				counters.found.Add(1)
				metrics.RecordFetched()
				select {
				case records <- *rec:
				case <-gctx.Done():
					return gctx.Err()
				}
			case errors.Is(err, source.ErrDone):
				return nil
			case gctx.Err() != nil:
				return gctx.Err()
			case pipeline.IsParseError(err):
				counters.errors.Add(1)
				metrics.RecordError()
				consecutiveNetFailures = 0
			case pipeline.IsNetworkError(err):
				counters.errors.Add(1)
				metrics.RecordError()
				consecutiveNetFailures++
				if consecutiveNetFailures >= maxConsecutiveFetchFailures {
					return pipeline.AdapterError{
						Domain: run.SourceDomain,
						Err:    fmt.Errorf("%d consecutive fetch failures, last: %w", consecutiveNetFailures, err),
					}
				}
			default:
				return err
			}
		}
	})

	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error {
			for rec := range records {
				// cooperative cancellation between items; never mid-write
				if err := gctx.Err(); err != nil {
					return err
				}

				result, err := s.resolver.Resolve(gctx, rec, run.IsDryRun)
				if err != nil {
					if pipeline.IsValidationError(err) {
						counters.errors.Add(1)
						metrics.RecordError()
						continue
					}
					return err
				}

				switch result.Outcome {
				case staging.OutcomeStagedNew:
					counters.added.Add(1)
					metrics.CandidateStaged()
				case staging.OutcomeUpdated:
					metrics.CandidateUpdated()
				case staging.OutcomeRefreshRouted:
					if run.IsDryRun {
						continue
					}
					price := rec.Price
					changes, err := s.catalog.ApplyRefresh(gctx, result.ProductID, catalog.RefreshPrice, &source.RefreshResult{
						SourceURL: rec.SourceURL,
						Price:     &price,
					})
					if err != nil {
						counters.errors.Add(1)
						metrics.RecordError()
						continue
					}
					if len(changes) > 0 {
						metrics.RefreshMutation()
						s.auditor.Record(gctx, "product.refreshed", "catalog_product", result.ProductID, "info", run.UserID, map[string]interface{}{
							"run_id":  run.ID,
							"trigger": "discovery",
							"changes": changes,
						})
					}
				}
			}
			return nil
		})
	}

	s.finishRun(run, g.Wait(), counters)
}

func (s *Scheduler) executeRefresh(runCtx context.Context, run *Run, adapter source.Adapter, productIDs []string, fields catalog.RefreshFields) {
	counters := &runCounters{}

	links, err := s.catalog.LinkedSources(runCtx, run.SourceDomain, productIDs)
	if err != nil {
		s.failEarly(runCtx, run, counters, err)
		return
	}

	if err := s.runs.Transition(context.Background(), run.ID, StatusPending, StatusRunning, nil); err != nil {
		s.finalize(run, StatusPending, StatusFailed, counters, err.Error())
		return
	}

	ids := make(chan string)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer close(ids)
		for _, id := range productIDs {
			select {
			case ids <- id:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error {
			for id := range ids {
				if err := gctx.Err(); err != nil {
					return err
				}

				sourceURL, linked := links[id]
				if !linked {
					counters.errors.Add(1)
					metrics.RecordError()
					continue
				}

				var res *source.RefreshResult
				err := s.queue.Do(gctx, run.SourceDomain, func(fctx context.Context) error {
					fetched, fetchErr := adapter.Refresh(fctx, sourceURL)
					if fetchErr != nil {
						return fetchErr
					}
					res = fetched
					return nil
				})
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					if pipeline.IsParseError(err) || pipeline.IsNetworkError(err) {
						counters.errors.Add(1)
						metrics.RecordError()
						continue
					}
					return err
				}

				counters.found.Add(1)
				if run.IsDryRun {
					continue
				}

				changes, err := s.catalog.ApplyRefresh(gctx, id, fields, res)
				if err != nil {
					if errors.Is(err, catalog.ErrProductNotFound) {
						counters.errors.Add(1)
						metrics.RecordError()
						continue
					}
					return err
				}

				if len(changes) > 0 {
					metrics.RefreshMutation()
					s.auditor.Record(gctx, "product.refreshed", "catalog_product", id, "info", run.UserID, map[string]interface{}{
						"run_id":  run.ID,
						"fields":  string(fields),
						"changes": changes,
					})
				}
			}
			return nil
		})
	}

	s.finishRun(run, g.Wait(), counters)
}

// finishRun maps the executor outcome onto a terminal status.
func (s *Scheduler) finishRun(run *Run, err error, counters *runCounters) {
	status := StatusSucceeded
	errMsg := ""
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status = StatusFailed
			errMsg = "run exceeded overall timeout"
		case errors.Is(err, context.Canceled):
			status = StatusCancelled
		default:
			status = StatusFailed
			errMsg = err.Error()
		}
	}
	s.finalize(run, StatusRunning, status, counters, errMsg)
}

func (s *Scheduler) finalize(run *Run, from, to Status, counters *runCounters, errMsg string) {
	ctx := context.Background()
	now := time.Now().UTC()

	updates := map[string]interface{}{
		"completed_at":     now,
		"duration_seconds": now.Sub(run.StartedAt).Seconds(),
		"products_found":   counters.found.Load(),
		"products_added":   counters.added.Load(),
		"error_count":      counters.errors.Load(),
		"error_message":    errMsg,
	}
	if err := s.runs.Transition(ctx, run.ID, from, to, updates); err != nil {
		logger.Log.WithError(err).WithField("run_id", run.ID).Error("failed to finalize run")
	}

	switch to {
	case StatusSucceeded:
		metrics.RunSucceeded()
	case StatusFailed:
		metrics.RunFailed()
	case StatusCancelled:
		metrics.RunCancelled()
	}

	if !run.IsDryRun && s.auditor != nil {
		severity := "info"
		if to == StatusFailed {
			severity = "warning"
		}
		s.auditor.Record(ctx, "run.completed", "scraper_run", run.ID, severity, run.UserID, map[string]interface{}{
			"source_domain":  run.SourceDomain,
			"mode":           run.Mode,
			"status":         string(to),
			"products_found": counters.found.Load(),
			"products_added": counters.added.Load(),
			"error_count":    counters.errors.Load(),
			"error_message":  errMsg,
		})
	}

	if s.events != nil {
		completedAt := now
		event := models.RunEvent{
			RunID:         run.ID,
			SourceDomain:  run.SourceDomain,
			Mode:          run.Mode,
			Status:        string(to),
			IsDryRun:      run.IsDryRun,
			ProductsFound: int(counters.found.Load()),
			ProductsAdded: int(counters.added.Load()),
			ErrorCount:    int(counters.errors.Load()),
			ErrorMessage:  errMsg,
			StartedAt:     run.StartedAt,
			CompletedAt:   &completedAt,
		}
		if err := s.events.PublishRunEvent(ctx, event); err != nil {
			logger.Log.WithError(err).WithField("run_id", run.ID).Warn("failed to publish run event")
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":         run.ID,
		"source":         run.SourceDomain,
		"status":         string(to),
		"products_found": counters.found.Load(),
		"products_added": counters.added.Load(),
		"error_count":    counters.errors.Load(),
	}).Info("run finished")
}
