// Package manager orchestrates the store lifecycle: admission of create
// requests, the detached provisioning and teardown workflows, and the
// queries served to the HTTP layer.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SHESHU45/UrumiAssignment/internal/admission"
	"github.com/SHESHU45/UrumiAssignment/internal/audit"
	"github.com/SHESHU45/UrumiAssignment/internal/cluster"
	"github.com/SHESHU45/UrumiAssignment/internal/deployer"
	"github.com/SHESHU45/UrumiAssignment/internal/events"
	"github.com/SHESHU45/UrumiAssignment/internal/metrics"
	"github.com/SHESHU45/UrumiAssignment/internal/model"
	"github.com/SHESHU45/UrumiAssignment/internal/store"
)

const (
	defaultNamespacePrefix     = "store-"
	defaultMaxTotalStores      = 50
	defaultProvisioningTimeout = 10 * time.Minute
	defaultPollInterval        = 5 * time.Second
	defaultDrainTimeout        = 30 * time.Second
	defaultWriteAttempts       = 5
	defaultWriteBackoffBase    = 200 * time.Millisecond
	defaultWriteBackoffMax     = 5 * time.Second
	terminalWriteTimeout       = 30 * time.Second

	detailPodEventLimit   = 20
	detailStoreEventLimit = 50
)

// Repository is the persistence surface the orchestrator needs.
type Repository interface {
	CreateStore(ctx context.Context, st model.Store) (model.Store, error)
	GetStore(ctx context.Context, id string) (model.Store, error)
	GetStoreByName(ctx context.Context, name string) (model.Store, error)
	ListActiveStores(ctx context.Context) ([]model.Store, error)
	CountActiveStores(ctx context.Context) (int, error)
	TransitionStore(ctx context.Context, id string, from model.Status, update model.StatusUpdate) (model.Store, error)
	MarkDeleted(ctx context.Context, id string) (model.Store, error)
	AppendEvent(ctx context.Context, storeID string, eventType model.EventType, message string) (model.StoreEvent, error)
	ListStoreEvents(ctx context.Context, storeID string, limit int) ([]model.StoreEvent, error)
	ListEvents(ctx context.Context, limit int) ([]model.StoreEvent, error)
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
	Metrics(ctx context.Context) (model.Metrics, error)
}

// Cluster is the cluster surface the orchestrator needs.
type Cluster interface {
	EnsureNamespaceExists(ctx context.Context, name string, labels map[string]string) error
	DeleteNamespace(ctx context.Context, name string) error
	ListPods(ctx context.Context, namespace string) ([]cluster.PodStatus, error)
	AllPodsReady(ctx context.Context, namespace string) (bool, error)
	ListRecentEvents(ctx context.Context, namespace string, limit int) ([]cluster.Event, error)
	ListIngressURLs(ctx context.Context, namespace string) ([]string, error)
}

// Deployer installs and removes workload releases.
type Deployer interface {
	Install(ctx context.Context, release, namespace string, params deployer.InstallParams) (deployer.URLs, error)
	Uninstall(ctx context.Context, release, namespace string) error
}

// Auditor records audit entries.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Config controls orchestrator policy.
type Config struct {
	NamespacePrefix       string
	StoreDomain           string
	DefaultEngine         string
	MaxTotalStores        int
	ProvisioningTimeout   time.Duration
	ReadinessPollInterval time.Duration
	DrainTimeout          time.Duration
	WriteRetryAttempts    int
	WriteRetryBase        time.Duration
	WriteRetryMax         time.Duration
}

type runtimeConfig struct {
	namespacePrefix     string
	storeDomain         string
	defaultEngine       string
	maxTotalStores      int
	provisioningTimeout time.Duration
	pollInterval        time.Duration
	drainTimeout        time.Duration
	writeAttempts       uint
	writeBackoffBase    time.Duration
	writeBackoffMax     time.Duration
	now                 func() time.Time
	sleep               func(context.Context, time.Duration) error
	newID               func() string
}

// Option configures optional collaborators.
type Option func(*Manager)

// WithAuditor sets the audit recorder.
func WithAuditor(a Auditor) Option {
	return func(m *Manager) { m.auditor = a }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithMetrics sets the Prometheus recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.log = logger.With().Str("component", "manager").Logger() }
}

// CreateRequest is one create call.
type CreateRequest struct {
	Name      string
	Engine    string
	IPAddress string
}

// DeleteResult acknowledges an accepted delete request.
type DeleteResult struct {
	Message string
	StoreID string
}

// Details is a store with its live cluster snapshot and recent events.
type Details struct {
	Store         model.Store
	Pods          []cluster.PodStatus
	ClusterEvents []cluster.Event
	Events        []model.StoreEvent
}

// MetricsSnapshot combines repository aggregates with admission state.
type MetricsSnapshot struct {
	model.Metrics
	ActiveProvisions        int
	MaxConcurrentProvisions int
}

// Manager is the store lifecycle orchestrator.
type Manager struct {
	repo      Repository
	cluster   Cluster
	deployer  Deployer
	catalog   model.Catalog
	gate      *admission.Controller
	auditor   Auditor
	publisher events.Publisher
	metrics   *metrics.Recorder
	log       zerolog.Logger
	cfg       runtimeConfig
	tasks     *taskRegistry

	// admitMu guards the quota check and record insert of Create, and orders
	// provisioning task registration against the cancel in Delete.
	admitMu sync.Mutex
}

// New creates a manager.
func New(
	repo Repository,
	clusterClient Cluster,
	dep Deployer,
	catalog model.Catalog,
	gate *admission.Controller,
	cfg Config,
	opts ...Option,
) *Manager {
	m := &Manager{
		repo:      repo,
		cluster:   clusterClient,
		deployer:  dep,
		catalog:   catalog,
		gate:      gate,
		publisher: events.NoopPublisher{},
		log:       zerolog.Nop(),
		cfg:       normalizeConfig(cfg),
		tasks:     newTaskRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func normalizeConfig(cfg Config) runtimeConfig {
	prefix := strings.TrimSpace(cfg.NamespacePrefix)
	if prefix == "" {
		prefix = defaultNamespacePrefix
	}

	defaultEngine := strings.ToLower(strings.TrimSpace(cfg.DefaultEngine))
	if defaultEngine == "" {
		defaultEngine = model.EngineWooCommerce
	}

	maxTotal := cfg.MaxTotalStores
	if maxTotal <= 0 {
		maxTotal = defaultMaxTotalStores
	}

	provisioningTimeout := cfg.ProvisioningTimeout
	if provisioningTimeout <= 0 {
		provisioningTimeout = defaultProvisioningTimeout
	}

	pollInterval := cfg.ReadinessPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if pollInterval > provisioningTimeout {
		pollInterval = provisioningTimeout
	}

	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	writeAttempts := cfg.WriteRetryAttempts
	if writeAttempts <= 0 {
		writeAttempts = defaultWriteAttempts
	}

	writeBase := cfg.WriteRetryBase
	if writeBase <= 0 {
		writeBase = defaultWriteBackoffBase
	}
	writeMax := cfg.WriteRetryMax
	if writeMax <= 0 {
		writeMax = defaultWriteBackoffMax
	}
	if writeMax < writeBase {
		writeMax = writeBase
	}

	return runtimeConfig{
		namespacePrefix:     prefix,
		storeDomain:         strings.TrimSpace(cfg.StoreDomain),
		defaultEngine:       defaultEngine,
		maxTotalStores:      maxTotal,
		provisioningTimeout: provisioningTimeout,
		pollInterval:        pollInterval,
		drainTimeout:        drainTimeout,
		writeAttempts:       uint(writeAttempts),
		writeBackoffBase:    writeBase,
		writeBackoffMax:     writeMax,
		now:                 time.Now,
		sleep:               sleepWithContext,
		newID:               newStoreID,
	}
}

func newStoreID() string {
	return uuid.NewString()[:8]
}

// Create validates and admits a create request, persists the store in
// Provisioning and starts its provisioning workflow. It returns without
// waiting for readiness.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (model.Store, error) {
	engineName := strings.ToLower(strings.TrimSpace(req.Engine))
	if engineName == "" {
		engineName = m.cfg.defaultEngine
	}

	engine, err := m.catalog.Lookup(engineName)
	switch {
	case errors.Is(err, model.ErrEngineNotImplemented):
		return model.Store{}, newError(KindValidation, "%s engine is not yet implemented", engine.DisplayName)
	case err != nil:
		return model.Store{}, newError(KindValidation, "Invalid engine: %s. Supported: %s",
			engineName, strings.Join(m.catalog.Names(), ", "))
	}

	name := req.Name
	if !model.ValidStoreName(name) {
		return model.Store{}, newError(KindValidation,
			"Store name must be DNS-safe: lowercase alphanumeric and hyphens, 1-63 chars")
	}

	if _, err := m.repo.GetStoreByName(ctx, name); err == nil {
		return model.Store{}, newError(KindConflict, "Store with name %q already exists", name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.Store{}, fmt.Errorf("checking store name: %w", err)
	}

	created, start, err := m.reserve(ctx, name, engine)
	if err != nil && created.ID == "" {
		return model.Store{}, err
	}
	id := created.ID

	logger := m.log.With().Str("store_id", id).Str("store_name", name).Logger()
	m.recordAudit(ctx, audit.Entry{
		StoreID:   id,
		Action:    model.AuditActionCreateStore,
		Details:   map[string]any{"name": name, "engine": engine.Name, "namespace": created.Namespace},
		IPAddress: req.IPAddress,
	})
	m.appendEvent(ctx, id, model.EventInfo, fmt.Sprintf("Store creation initiated (engine: %s)", engine.Name))
	m.publish(ctx, created)
	m.metrics.StoreCreated(engine.Name)

	if err != nil {
		logger.Error().Err(err).Msg("failed to start provisioning workflow")
		m.failProvisioning(context.WithoutCancel(ctx), created, err.Error())
		return created, nil
	}
	close(start)

	logger.Info().Str("engine", engine.Name).Str("namespace", created.Namespace).Msg("store creation accepted")
	return created, nil
}

// reserve runs the check-and-reserve part of Create under admitMu: the
// quota check, the admission slot, the Provisioning record and the workflow
// task. The task waits for start to be closed before it provisions. When the
// record was persisted but the task could not be spawned, reserve returns the
// record together with the error.
func (m *Manager) reserve(ctx context.Context, name string, engine model.Engine) (model.Store, chan struct{}, error) {
	m.admitMu.Lock()
	defer m.admitMu.Unlock()

	if m.tasks.isClosed() {
		return model.Store{}, nil, ErrShuttingDown
	}

	active, err := m.repo.CountActiveStores(ctx)
	if err != nil {
		return model.Store{}, nil, fmt.Errorf("counting active stores: %w", err)
	}
	if active >= m.cfg.maxTotalStores {
		return model.Store{}, nil, newError(KindQuotaExceeded, "Maximum total stores (%d) reached", m.cfg.maxTotalStores)
	}

	id := m.cfg.newID()
	if !m.gate.TryAcquire(id) {
		return model.Store{}, nil, newError(KindConcurrencyLimit,
			"Too many concurrent provisions. Max: %d. Please try again shortly.", m.gate.Limit())
	}
	m.metrics.SetActiveProvisions(m.gate.ActiveCount())

	now := m.cfg.now().UTC()
	created, err := m.repo.CreateStore(ctx, model.Store{
		ID:        id,
		Name:      name,
		Engine:    engine.Name,
		Status:    model.StatusProvisioning,
		Namespace: m.cfg.namespacePrefix + id,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		m.releaseSlot(id)
		if errors.Is(err, store.ErrConflict) {
			return model.Store{}, nil, newError(KindConflict, "Store with name %q already exists", name)
		}
		return model.Store{}, nil, fmt.Errorf("persisting store: %w", err)
	}

	start := make(chan struct{})
	if err := m.tasks.spawn(provisionKey(id), func(taskCtx context.Context) {
		defer m.releaseSlot(id)
		select {
		case <-start:
		case <-taskCtx.Done():
			return
		}
		m.provision(taskCtx, created, engine)
	}); err != nil {
		m.releaseSlot(id)
		return created, nil, err
	}
	return created, start, nil
}

// Delete accepts a delete request and starts the teardown workflow.
func (m *Manager) Delete(ctx context.Context, id, ipAddress string) (DeleteResult, error) {
	current, err := m.repo.GetStore(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DeleteResult{}, newError(KindNotFound, "Store not found")
		}
		return DeleteResult{}, fmt.Errorf("loading store: %w", err)
	}
	if current.Status == model.StatusDeleting {
		return DeleteResult{}, newError(KindConflict, "Store is already being deleted")
	}

	deleting, err := m.repo.TransitionStore(ctx, id, current.Status, model.StatusUpdate{Status: model.StatusDeleting})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return DeleteResult{}, newError(KindNotFound, "Store not found")
		case errors.Is(err, store.ErrConflict), errors.Is(err, model.ErrInvalidTransition):
			return DeleteResult{}, newError(KindConflict, "Store status changed concurrently, please retry")
		default:
			return DeleteResult{}, fmt.Errorf("marking store deleting: %w", err)
		}
	}

	logger := m.log.With().Str("store_id", id).Str("store_name", deleting.Name).Logger()

	m.appendEvent(ctx, id, model.EventInfo, "Store deletion initiated")
	m.recordAudit(ctx, audit.Entry{
		StoreID:   id,
		Action:    model.AuditActionDeleteStore,
		Details:   map[string]any{"name": deleting.Name, "engine": deleting.Engine},
		IPAddress: ipAddress,
	})
	m.publish(ctx, deleting)

	if err := m.startTeardown(deleting, logger); err != nil {
		logger.Error().Err(err).Msg("failed to start teardown workflow")
		m.failTeardown(context.WithoutCancel(ctx), deleting, err.Error())
	}

	logger.Info().Msg("store deletion accepted")
	return DeleteResult{Message: "Store deletion initiated", StoreID: id}, nil
}

// startTeardown cancels any provisioning task still running for the store,
// whatever status the record had, and spawns teardown behind it. admitMu
// orders this against the spawn in reserve.
func (m *Manager) startTeardown(st model.Store, logger zerolog.Logger) error {
	m.admitMu.Lock()
	defer m.admitMu.Unlock()

	key := provisionKey(st.ID)
	if m.tasks.running(key) {
		logger.Info().Msg("cancelling in-flight provisioning workflow")
	}
	provisioningDone := m.tasks.cancel(key)

	return m.tasks.spawn(teardownKey(st.ID), func(taskCtx context.Context) {
		select {
		case <-provisioningDone:
		case <-taskCtx.Done():
		}
		m.teardown(taskCtx, st)
	})
}

// Get returns one active store.
func (m *Manager) Get(ctx context.Context, id string) (model.Store, error) {
	st, err := m.repo.GetStore(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Store{}, newError(KindNotFound, "Store not found")
		}
		return model.Store{}, fmt.Errorf("loading store: %w", err)
	}
	return st, nil
}

// GetDetails returns a store with its live cluster snapshot. Cluster errors
// degrade to empty lists.
func (m *Manager) GetDetails(ctx context.Context, id string) (Details, error) {
	st, err := m.Get(ctx, id)
	if err != nil {
		return Details{}, err
	}

	details := Details{Store: st, Pods: []cluster.PodStatus{}, ClusterEvents: []cluster.Event{}}
	if pods, err := m.cluster.ListPods(ctx, st.Namespace); err != nil {
		m.log.Debug().Err(err).Str("store_id", id).Msg("could not fetch pods")
	} else {
		details.Pods = pods
	}
	if clusterEvents, err := m.cluster.ListRecentEvents(ctx, st.Namespace, detailPodEventLimit); err != nil {
		m.log.Debug().Err(err).Str("store_id", id).Msg("could not fetch cluster events")
	} else {
		details.ClusterEvents = clusterEvents
	}

	storeEvents, err := m.repo.ListStoreEvents(ctx, id, detailStoreEventLimit)
	if err != nil {
		return Details{}, fmt.Errorf("listing store events: %w", err)
	}
	details.Events = storeEvents
	return details, nil
}

// List returns every store that is not deleted, newest first.
func (m *Manager) List(ctx context.Context) ([]model.Store, error) {
	stores, err := m.repo.ListActiveStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	return stores, nil
}

// ListStoreEvents returns the events of one active store, newest first.
func (m *Manager) ListStoreEvents(ctx context.Context, id string, limit int) ([]model.StoreEvent, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	items, err := m.repo.ListStoreEvents(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("listing store events: %w", err)
	}
	return items, nil
}

// ListEvents returns events across all stores, newest first.
func (m *Manager) ListEvents(ctx context.Context, limit int) ([]model.StoreEvent, error) {
	items, err := m.repo.ListEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return items, nil
}

// ListAudit returns audit entries, newest first.
func (m *Manager) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	items, err := m.repo.ListAudit(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	return items, nil
}

// Metrics returns repository aggregates and admission state.
func (m *Manager) Metrics(ctx context.Context) (MetricsSnapshot, error) {
	aggregate, err := m.repo.Metrics(ctx)
	if err != nil {
		return MetricsSnapshot{}, fmt.Errorf("aggregating metrics: %w", err)
	}
	return MetricsSnapshot{
		Metrics:                 aggregate,
		ActiveProvisions:        m.gate.ActiveCount(),
		MaxConcurrentProvisions: m.gate.Limit(),
	}, nil
}

// Shutdown stops accepting workflows, waits up to the drain timeout for
// running ones, then cancels the rest and waits until ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.log.Info().Int("running", m.tasks.count()).Dur("grace", m.cfg.drainTimeout).Msg("draining workflows")
	if err := m.tasks.drain(ctx, m.cfg.drainTimeout); err != nil {
		return fmt.Errorf("draining workflows: %w", err)
	}
	return nil
}

func (m *Manager) releaseSlot(id string) {
	m.gate.Release(id)
	m.metrics.SetActiveProvisions(m.gate.ActiveCount())
}

// transition applies a status change, retrying transient repository errors.
// Conflicts are returned immediately.
func (m *Manager) transition(ctx context.Context, id string, from model.Status, update model.StatusUpdate) (model.Store, error) {
	return m.retryWrite(ctx, id, update.Status, func() (model.Store, error) {
		return m.repo.TransitionStore(ctx, id, from, update)
	})
}

func (m *Manager) retryWrite(ctx context.Context, id string, to model.Status, write func() (model.Store, error)) (model.Store, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.cfg.writeBackoffBase
	policy.MaxInterval = m.cfg.writeBackoffMax

	return backoff.Retry(ctx, func() (model.Store, error) {
		st, err := write()
		if err != nil {
			if errors.Is(err, store.ErrConflict) ||
				errors.Is(err, store.ErrNotFound) ||
				errors.Is(err, model.ErrInvalidTransition) {
				return model.Store{}, backoff.Permanent(err)
			}
			m.log.Warn().Err(err).Str("store_id", id).Str("to", string(to)).Msg("status write failed, retrying")
			return model.Store{}, err
		}
		return st, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(m.cfg.writeAttempts))
}

func (m *Manager) appendEvent(ctx context.Context, storeID string, eventType model.EventType, message string) {
	if _, err := m.repo.AppendEvent(ctx, storeID, eventType, audit.RedactSensitiveText(message)); err != nil {
		m.log.Warn().Err(err).Str("store_id", storeID).Msg("failed to append store event")
	}
}

func (m *Manager) recordAudit(ctx context.Context, entry audit.Entry) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Record(ctx, entry); err != nil {
		m.log.Warn().Err(err).Str("store_id", entry.StoreID).Str("action", entry.Action).Msg("failed to record audit entry")
	}
}

func (m *Manager) publish(ctx context.Context, st model.Store) {
	if err := m.publisher.PublishStore(ctx, st); err != nil {
		m.log.Warn().Err(err).Str("store_id", st.ID).Str("status", string(st.Status)).Msg("failed to publish lifecycle event")
	}
}

func provisionKey(id string) string {
	return "provision/" + id
}

func teardownKey(id string) string {
	return "teardown/" + id
}
