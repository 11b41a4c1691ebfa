package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/SHESHU45/UrumiAssignment/internal/audit"
	"github.com/SHESHU45/UrumiAssignment/internal/model"
	"github.com/SHESHU45/UrumiAssignment/internal/store"
)

// teardown uninstalls the release, deletes the namespace and marks st
// Deleted. Any failure moves the store to Failed so it never stays Deleting.
func (m *Manager) teardown(ctx context.Context, st model.Store) {
	logger := m.log.With().Str("store_id", st.ID).Str("namespace", st.Namespace).Logger()

	if err := m.removeResources(ctx, st); err != nil {
		logger.Error().Err(err).Msg("teardown failed")
		m.failTeardown(ctx, st, err.Error())
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	deleted, err := m.markDeleted(writeCtx, st.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to mark store deleted")
		m.failTeardown(ctx, st, err.Error())
		return
	}

	m.appendEvent(writeCtx, st.ID, model.EventSuccess, "Store and all resources deleted")
	m.publish(writeCtx, deleted)
	m.metrics.DeleteFinished(st.Engine, "deleted")
	logger.Info().Msg("store deleted")
}

func (m *Manager) removeResources(ctx context.Context, st model.Store) error {
	release := st.Engine + "-" + st.ID
	if engine, ok := m.catalog.Get(st.Engine); ok {
		release = engine.ReleaseName(st.ID)
	}

	if err := m.deployer.Uninstall(ctx, release, st.Namespace); err != nil {
		return wrapError(KindExternalTool, err)
	}
	if err := m.cluster.DeleteNamespace(ctx, st.Namespace); err != nil {
		return wrapError(KindExternalTool, fmt.Errorf("deleting namespace: %w", err))
	}
	return nil
}

func (m *Manager) markDeleted(ctx context.Context, id string) (model.Store, error) {
	return m.retryWrite(ctx, id, model.StatusDeleted, func() (model.Store, error) {
		return m.repo.MarkDeleted(ctx, id)
	})
}

func (m *Manager) failTeardown(ctx context.Context, st model.Store, message string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	message = audit.RedactSensitiveText(message)
	m.metrics.DeleteFinished(st.Engine, "failed")

	failed, err := m.transition(writeCtx, st.ID, model.StatusDeleting, model.StatusUpdate{
		Status:       model.StatusFailed,
		ErrorMessage: model.StringPtr("Delete failed: " + message),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			m.log.Info().Str("store_id", st.ID).Msg("store left Deleting before failure was recorded, skipping")
			return
		}
		m.log.Error().Err(err).Str("store_id", st.ID).Msg("failed to record teardown failure")
		return
	}

	m.appendEvent(writeCtx, st.ID, model.EventError, "Deletion failed: "+message)
	m.publish(writeCtx, failed)
}
