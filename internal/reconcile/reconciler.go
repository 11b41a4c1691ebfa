// Package reconcile periodically re-derives store state from the cluster and
// heals records left in Provisioning by a lost workflow.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/SHESHU45/UrumiAssignment/internal/cluster"
	"github.com/SHESHU45/UrumiAssignment/internal/deployer"
	"github.com/SHESHU45/UrumiAssignment/internal/events"
	"github.com/SHESHU45/UrumiAssignment/internal/metrics"
	"github.com/SHESHU45/UrumiAssignment/internal/model"
	"github.com/SHESHU45/UrumiAssignment/internal/store"
)

const (
	defaultInterval            = 30 * time.Second
	defaultProvisioningTimeout = 10 * time.Minute
	defaultConcurrency         = 4
	defaultNamespaceGrace      = time.Minute
)

// Repository is the persistence surface the reconciler needs.
type Repository interface {
	ListStoresByStatus(ctx context.Context, status model.Status) ([]model.Store, error)
	ListActiveStores(ctx context.Context) ([]model.Store, error)
	TransitionStore(ctx context.Context, id string, from model.Status, update model.StatusUpdate) (model.Store, error)
	AppendEvent(ctx context.Context, storeID string, eventType model.EventType, message string) (model.StoreEvent, error)
}

// Cluster is the cluster surface the reconciler needs.
type Cluster interface {
	NamespaceExists(ctx context.Context, name string) (bool, error)
	AllPodsReady(ctx context.Context, namespace string) (bool, error)
	ListIngressURLs(ctx context.Context, namespace string) ([]string, error)
	ListManagedNamespaces(ctx context.Context, selector string) ([]string, error)
}

// Config contains reconciliation settings.
type Config struct {
	Interval            time.Duration
	ProvisioningTimeout time.Duration
	StoreDomain         string
	// Concurrency bounds the per-store cluster checks of one pass.
	Concurrency int
	// NamespaceGrace is how long after creation a missing namespace is
	// expected, because the workflow has not created it yet.
	NamespaceGrace time.Duration
}

// Counts summarizes one pass.
type Counts struct {
	Checked          int `json:"checked"`
	MarkedReady      int `json:"marked_ready"`
	MarkedFailed     int `json:"marked_failed"`
	Skipped          int `json:"skipped"`
	Errors           int `json:"errors"`
	OrphanNamespaces int `json:"orphan_namespaces"`
}

// Status captures current and last-run reconciliation state.
type Status struct {
	Ready          bool       `json:"ready"`
	InProgress     bool       `json:"in_progress"`
	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastCounts     Counts     `json:"last_counts"`
	SuccessfulRuns int64      `json:"successful_runs"`
	FailedRuns     int64      `json:"failed_runs"`
}

// Option configures optional collaborators.
type Option func(*Reconciler)

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(r *Reconciler) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithMetrics sets the Prometheus recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = logger.With().Str("component", "reconciler").Logger() }
}

// Reconciler runs periodic and on-demand reconciliation passes.
type Reconciler struct {
	repo      Repository
	cluster   Cluster
	catalog   model.Catalog
	publisher events.Publisher
	metrics   *metrics.Recorder
	log       zerolog.Logger

	interval            time.Duration
	provisioningTimeout time.Duration
	storeDomain         string
	concurrency         int
	namespaceGrace      time.Duration
	now                 func() time.Time
	forceCh             chan chan error

	runMu   stdsync.Mutex
	stateMu stdsync.RWMutex
	status  Status

	ready atomic.Bool
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeReady
	outcomeFailed
	outcomeSkipped
)

// New creates a reconciler.
func New(repo Repository, clusterClient Cluster, catalog model.Catalog, cfg Config, opts ...Option) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	provisioningTimeout := cfg.ProvisioningTimeout
	if provisioningTimeout <= 0 {
		provisioningTimeout = defaultProvisioningTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	namespaceGrace := cfg.NamespaceGrace
	if namespaceGrace <= 0 {
		namespaceGrace = defaultNamespaceGrace
	}
	if namespaceGrace > provisioningTimeout {
		namespaceGrace = provisioningTimeout
	}

	r := &Reconciler{
		repo:                repo,
		cluster:             clusterClient,
		catalog:             catalog,
		publisher:           events.NoopPublisher{},
		log:                 zerolog.Nop(),
		interval:            interval,
		provisioningTimeout: provisioningTimeout,
		storeDomain:         strings.TrimSpace(cfg.StoreDomain),
		concurrency:         concurrency,
		namespaceGrace:      namespaceGrace,
		now:                 time.Now,
		forceCh:             make(chan chan error),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reconciles once at startup, then on every tick until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("reconciliation loop started")
	if err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
		r.log.Error().Err(err).Msg("initial reconciliation failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciliation loop stopped")
			return
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("periodic reconciliation failed")
			}
		case resultCh := <-r.forceCh:
			resultCh <- r.ReconcileOnce(ctx)
		}
	}
}

// Trigger requests an immediate pass from the running loop and waits for it.
func (r *Reconciler) Trigger(ctx context.Context) error {
	resultCh := make(chan error, 1)

	select {
	case r.forceCh <- resultCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsReady reports whether at least one pass has completed.
func (r *Reconciler) IsReady() bool {
	return r.ready.Load()
}

// Status returns the latest reconciliation status snapshot.
func (r *Reconciler) Status() Status {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	statusCopy := r.status
	statusCopy.Ready = r.ready.Load()
	statusCopy.LastAttemptAt = cloneTimePtr(r.status.LastAttemptAt)
	statusCopy.LastRunAt = cloneTimePtr(r.status.LastRunAt)
	return statusCopy
}

// ReconcileOnce checks every Provisioning store and counts orphaned managed
// namespaces. Errors on one store are logged and do not stop the pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	startedAt := r.now().UTC()
	r.updateStatus(func(st *Status) {
		st.InProgress = true
		st.LastAttemptAt = &startedAt
		st.LastError = ""
	})
	defer r.updateStatus(func(st *Status) {
		st.InProgress = false
	})

	provisioning, err := r.repo.ListStoresByStatus(ctx, model.StatusProvisioning)
	if err != nil {
		err = fmt.Errorf("listing provisioning stores: %w", err)
		r.markFailure(err, startedAt)
		return err
	}

	var (
		countsMu stdsync.Mutex
		counts   = Counts{Checked: len(provisioning)}
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for _, st := range provisioning {
		group.Go(func() error {
			result, checkErr := r.checkStore(groupCtx, st)
			countsMu.Lock()
			defer countsMu.Unlock()
			if checkErr != nil {
				counts.Errors++
				r.log.Warn().Err(checkErr).Str("store_id", st.ID).Msg("reconcile check failed")
				return nil
			}
			switch result {
			case outcomeReady:
				counts.MarkedReady++
			case outcomeFailed:
				counts.MarkedFailed++
			case outcomeSkipped:
				counts.Skipped++
			}
			return nil
		})
	}
	_ = group.Wait()

	orphans, err := r.countOrphanNamespaces(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("could not check for orphaned namespaces")
		counts.Errors++
	} else {
		counts.OrphanNamespaces = orphans
		r.metrics.SetOrphanNamespaces(orphans)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.markFailure(ctxErr, startedAt)
		return ctxErr
	}

	r.ready.Store(true)
	completedAt := r.now().UTC()
	r.updateStatus(func(st *Status) {
		st.LastRunAt = &completedAt
		st.LastCounts = counts
		st.SuccessfulRuns++
	})
	r.metrics.ReconcileFinished(nil, completedAt.Sub(startedAt))

	if counts.MarkedReady+counts.MarkedFailed > 0 || counts.Errors > 0 {
		r.log.Info().
			Int("checked", counts.Checked).
			Int("ready", counts.MarkedReady).
			Int("failed", counts.MarkedFailed).
			Int("errors", counts.Errors).
			Msg("reconciliation pass finished")
	}
	return nil
}

// checkStore applies, in order, the timeout, namespace-gone, and readiness
// rules to one Provisioning store. A store younger than namespaceGrace is
// left alone when its namespace is missing.
func (r *Reconciler) checkStore(ctx context.Context, st model.Store) (outcome, error) {
	age := r.now().Sub(st.CreatedAt)
	if age > r.provisioningTimeout {
		return r.fail(ctx, st, "Provisioning timed out during reconciliation", "Provisioning timed out")
	}

	exists, err := r.cluster.NamespaceExists(ctx, st.Namespace)
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("checking namespace %s: %w", st.Namespace, err)
	}
	if !exists {
		if age < r.namespaceGrace {
			return outcomeUnchanged, nil
		}
		return r.fail(ctx, st, "Namespace no longer exists", "Namespace disappeared")
	}

	ready, err := r.cluster.AllPodsReady(ctx, st.Namespace)
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("checking readiness of %s: %w", st.Namespace, err)
	}
	if !ready {
		return outcomeUnchanged, nil
	}

	engine, ok := r.catalog.Get(st.Engine)
	if !ok {
		engine = model.Engine{Name: st.Engine, AdminPath: "/admin"}
	}
	urls := deployer.StoreURLs(r.storeDomain, st.Name, engine)
	ingressURLs, err := r.cluster.ListIngressURLs(ctx, st.Namespace)
	if err != nil {
		r.log.Debug().Err(err).Str("store_id", st.ID).Msg("could not list ingress urls, using defaults")
	}
	urls = deployer.PreferIngress(urls, ingressURLs, engine.AdminPath)

	return r.apply(ctx, st, model.StatusUpdate{
		Status:     model.StatusReady,
		StoreURL:   model.StringPtr(urls.StoreURL),
		AdminURL:   model.StringPtr(urls.AdminURL),
		ClearError: true,
	}, model.EventSuccess, "Store became ready (detected by reconciler)")
}

func (r *Reconciler) fail(ctx context.Context, st model.Store, errorMessage, eventMessage string) (outcome, error) {
	return r.apply(ctx, st, model.StatusUpdate{
		Status:       model.StatusFailed,
		ErrorMessage: model.StringPtr(errorMessage),
	}, model.EventError, eventMessage)
}

// apply writes the transition only if the store is still Provisioning, so a
// workflow or delete that got there first wins.
func (r *Reconciler) apply(
	ctx context.Context,
	st model.Store,
	update model.StatusUpdate,
	eventType model.EventType,
	eventMessage string,
) (outcome, error) {
	updated, err := r.repo.TransitionStore(ctx, st.ID, model.StatusProvisioning, update)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			r.log.Debug().Str("store_id", st.ID).Msg("store left Provisioning during reconciliation, skipping")
			return outcomeSkipped, nil
		}
		return outcomeUnchanged, fmt.Errorf("transitioning store to %s: %w", update.Status, err)
	}

	if _, err := r.repo.AppendEvent(ctx, st.ID, eventType, eventMessage); err != nil {
		r.log.Warn().Err(err).Str("store_id", st.ID).Msg("failed to append store event")
	}
	if err := r.publisher.PublishStore(ctx, updated); err != nil {
		r.log.Warn().Err(err).Str("store_id", st.ID).Msg("failed to publish lifecycle event")
	}
	r.metrics.ReconcileTransition(string(update.Status))

	r.log.Info().
		Str("store_id", st.ID).
		Str("store_name", st.Name).
		Str("status", string(update.Status)).
		Msg(eventMessage)

	if update.Status == model.StatusReady {
		return outcomeReady, nil
	}
	return outcomeFailed, nil
}

// countOrphanNamespaces reports managed namespaces with no live store record.
// They are logged, never deleted.
func (r *Reconciler) countOrphanNamespaces(ctx context.Context) (int, error) {
	namespaces, err := r.cluster.ListManagedNamespaces(ctx, cluster.ManagedSelector)
	if err != nil {
		return 0, fmt.Errorf("listing managed namespaces: %w", err)
	}
	if len(namespaces) == 0 {
		return 0, nil
	}

	stores, err := r.repo.ListActiveStores(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active stores: %w", err)
	}
	owned := make(map[string]struct{}, len(stores))
	for _, st := range stores {
		owned[st.Namespace] = struct{}{}
	}

	orphans := 0
	for _, namespace := range namespaces {
		if _, ok := owned[namespace]; ok {
			continue
		}
		orphans++
		r.log.Warn().Str("namespace", namespace).Msg("managed namespace has no active store record")
	}
	return orphans, nil
}

func (r *Reconciler) markFailure(err error, startedAt time.Time) {
	r.updateStatus(func(st *Status) {
		st.FailedRuns++
		st.LastError = err.Error()
		st.LastCounts = Counts{}
	})
	r.metrics.ReconcileFinished(err, r.now().UTC().Sub(startedAt))
}

func (r *Reconciler) updateStatus(update func(*Status)) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	update(&r.status)
}

func cloneTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
