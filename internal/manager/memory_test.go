package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SHESHU45/UrumiAssignment/internal/cluster"
	"github.com/SHESHU45/UrumiAssignment/internal/deployer"
	"github.com/SHESHU45/UrumiAssignment/internal/model"
	"github.com/SHESHU45/UrumiAssignment/internal/store"
)

type memoryRepo struct {
	mu sync.Mutex

	stores   map[string]model.Store
	events   []model.StoreEvent
	audit    []model.AuditEntry
	eventSeq int64

	transitionFn func(id string, from model.Status, update model.StatusUpdate) error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stores: make(map[string]model.Store)}
}

func (r *memoryRepo) CreateStore(_ context.Context, st model.Store) (model.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.stores {
		if existing.Name == st.Name && existing.DeletedAt == nil {
			return model.Store{}, fmt.Errorf("%w: duplicate name", store.ErrConflict)
		}
	}
	if _, exists := r.stores[st.ID]; exists {
		return model.Store{}, fmt.Errorf("%w: duplicate id", store.ErrConflict)
	}
	r.stores[st.ID] = st
	return st, nil
}

func (r *memoryRepo) GetStore(_ context.Context, id string) (model.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stores[id]
	if !ok || st.DeletedAt != nil {
		return model.Store{}, store.ErrNotFound
	}
	return st, nil
}

func (r *memoryRepo) GetStoreByName(_ context.Context, name string) (model.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, st := range r.stores {
		if st.Name == name && st.DeletedAt == nil {
			return st, nil
		}
	}
	return model.Store{}, store.ErrNotFound
}

func (r *memoryRepo) ListActiveStores(_ context.Context) ([]model.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Store, 0, len(r.stores))
	for _, st := range r.stores {
		if st.DeletedAt == nil {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) CountActiveStores(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, st := range r.stores {
		if st.DeletedAt == nil && st.Status != model.StatusFailed {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) TransitionStore(_ context.Context, id string, from model.Status, update model.StatusUpdate) (model.Store, error) {
	if err := model.ValidateTransition(from, update.Status); err != nil {
		return model.Store{}, err
	}

	r.mu.Lock()
	hook := r.transitionFn
	r.mu.Unlock()
	if hook != nil {
		if err := hook(id, from, update); err != nil {
			return model.Store{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stores[id]
	if !ok || st.DeletedAt != nil {
		return model.Store{}, store.ErrNotFound
	}
	if st.Status != from {
		return st, fmt.Errorf("%w: store %q is %s, expected %s", store.ErrConflict, id, st.Status, from)
	}

	now := time.Now().UTC()
	st.Status = update.Status
	st.UpdatedAt = now
	if update.StoreURL != nil {
		st.StoreURL = update.StoreURL
	}
	if update.AdminURL != nil {
		st.AdminURL = update.AdminURL
	}
	switch {
	case update.ClearError:
		st.ErrorMessage = nil
	case update.ErrorMessage != nil:
		st.ErrorMessage = update.ErrorMessage
	}
	if update.Status == model.StatusReady && st.ReadyAt == nil {
		st.ReadyAt = &now
	}
	if update.Status == model.StatusDeleted {
		st.DeletedAt = &now
	}
	r.stores[id] = st
	return st, nil
}

func (r *memoryRepo) MarkDeleted(ctx context.Context, id string) (model.Store, error) {
	return r.TransitionStore(ctx, id, model.StatusDeleting, model.StatusUpdate{Status: model.StatusDeleted})
}

func (r *memoryRepo) AppendEvent(_ context.Context, storeID string, eventType model.EventType, message string) (model.StoreEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.eventSeq++
	event := model.StoreEvent{ID: r.eventSeq, StoreID: storeID, Type: eventType, Message: message, CreatedAt: time.Now().UTC()}
	r.events = append(r.events, event)
	return event, nil
}

func (r *memoryRepo) ListStoreEvents(_ context.Context, storeID string, limit int) ([]model.StoreEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.StoreEvent, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].StoreID == storeID {
			out = append(out, r.events[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) ListEvents(_ context.Context, limit int) ([]model.StoreEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.StoreEvent, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		out = append(out, r.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) AppendAudit(_ context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.ID = int64(len(r.audit) + 1)
	r.audit = append(r.audit, entry)
	return entry, nil
}

func (r *memoryRepo) ListAudit(_ context.Context, limit int) ([]model.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.AuditEntry, 0)
	for i := len(r.audit) - 1; i >= 0; i-- {
		out = append(out, r.audit[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) Metrics(_ context.Context) (model.Metrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics := model.Metrics{ByStatus: map[model.Status]int{}}
	for _, st := range r.stores {
		metrics.TotalCreated++
		if st.DeletedAt != nil {
			metrics.TotalDeleted++
			continue
		}
		metrics.TotalActive++
		metrics.ByStatus[st.Status]++
	}
	return metrics, nil
}

// record returns the raw record, including deleted ones.
func (r *memoryRepo) record(id string) (model.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[id]
	return st, ok
}

func (r *memoryRepo) messages(storeID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0)
	for _, event := range r.events {
		if event.StoreID == storeID {
			out = append(out, string(event.Type)+": "+event.Message)
		}
	}
	return out
}

func (r *memoryRepo) auditActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.audit))
	for _, entry := range r.audit {
		out = append(out, entry.Action)
	}
	return out
}

type mockCluster struct {
	mu sync.Mutex

	ensureFn    func(ctx context.Context, name string, labels map[string]string) error
	deleteFn    func(ctx context.Context, name string) error
	readyFn     func(ctx context.Context, namespace string) (bool, error)
	podsFn      func(ctx context.Context, namespace string) ([]cluster.PodStatus, error)
	ingressURLs []string

	ensured map[string]map[string]string
	deleted []string
}

func (c *mockCluster) EnsureNamespaceExists(ctx context.Context, name string, labels map[string]string) error {
	c.mu.Lock()
	if c.ensured == nil {
		c.ensured = make(map[string]map[string]string)
	}
	c.ensured[name] = labels
	fn := c.ensureFn
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, name, labels)
	}
	return nil
}

func (c *mockCluster) DeleteNamespace(ctx context.Context, name string) error {
	c.mu.Lock()
	c.deleted = append(c.deleted, name)
	fn := c.deleteFn
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, name)
	}
	return nil
}

func (c *mockCluster) ListPods(ctx context.Context, namespace string) ([]cluster.PodStatus, error) {
	if c.podsFn != nil {
		return c.podsFn(ctx, namespace)
	}
	return []cluster.PodStatus{{Name: "wordpress-0", Phase: "Running", Ready: true}}, nil
}

func (c *mockCluster) AllPodsReady(ctx context.Context, namespace string) (bool, error) {
	c.mu.Lock()
	fn := c.readyFn
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, namespace)
	}
	return true, nil
}

func (c *mockCluster) ListRecentEvents(_ context.Context, _ string, _ int) ([]cluster.Event, error) {
	return []cluster.Event{{Type: "Normal", Reason: "Started", Object: "Pod/wordpress-0"}}, nil
}

func (c *mockCluster) ListIngressURLs(_ context.Context, _ string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ingressURLs...), nil
}

func (c *mockCluster) setReady(fn func(ctx context.Context, namespace string) (bool, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readyFn = fn
}

func (c *mockCluster) deletedNamespaces() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

type mockDeployer struct {
	mu sync.Mutex

	installFn   func(ctx context.Context, release, namespace string, params deployer.InstallParams) (deployer.URLs, error)
	uninstallFn func(ctx context.Context, release, namespace string) error

	installs   []string
	uninstalls []string
}

func (d *mockDeployer) Install(ctx context.Context, release, namespace string, params deployer.InstallParams) (deployer.URLs, error) {
	d.mu.Lock()
	d.installs = append(d.installs, release)
	fn := d.installFn
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, release, namespace, params)
	}
	return deployer.StoreURLs("store.localhost", params.StoreName, params.Engine), nil
}

func (d *mockDeployer) Uninstall(ctx context.Context, release, namespace string) error {
	d.mu.Lock()
	d.uninstalls = append(d.uninstalls, release)
	fn := d.uninstallFn
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, release, namespace)
	}
	return nil
}

func (d *mockDeployer) uninstalled() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.uninstalls...)
}
