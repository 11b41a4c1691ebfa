package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SHESHU45/UrumiAssignment/internal/audit"
	"github.com/SHESHU45/UrumiAssignment/internal/cluster"
	"github.com/SHESHU45/UrumiAssignment/internal/deployer"
	"github.com/SHESHU45/UrumiAssignment/internal/model"
	"github.com/SHESHU45/UrumiAssignment/internal/store"
)

// provision runs the provisioning workflow for st. The caller holds the
// admission slot for the whole run.
func (m *Manager) provision(ctx context.Context, st model.Store, engine model.Engine) {
	logger := m.log.With().Str("store_id", st.ID).Str("namespace", st.Namespace).Logger()
	started := m.cfg.now()

	workflowCtx, cancel := context.WithTimeout(ctx, m.cfg.provisioningTimeout)
	defer cancel()

	urls, err := m.runProvisioning(workflowCtx, st, engine)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by a delete or by shutdown. The teardown workflow or
			// the reconciler owns the record now.
			logger.Info().Err(err).Msg("provisioning workflow cancelled")
			m.metrics.ProvisionFinished(engine.Name, "aborted", m.cfg.now().Sub(started))
			return
		}
		if errors.Is(workflowCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrProvisioningTimeout) {
			err = newError(KindProvisioningTimeout,
				"Provisioning timeout after %ds: %v", int64(m.cfg.provisioningTimeout/time.Second), err)
		}

		logger.Error().Err(err).Msg("provisioning failed")
		m.failProvisioning(ctx, st, err.Error())
		m.metrics.ProvisionFinished(engine.Name, "failed", m.cfg.now().Sub(started))
		return
	}

	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancelWrite()

	ready, err := m.transition(writeCtx, st.ID, model.StatusProvisioning, model.StatusUpdate{
		Status:     model.StatusReady,
		StoreURL:   model.StringPtr(urls.StoreURL),
		AdminURL:   model.StringPtr(urls.AdminURL),
		ClearError: true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			logger.Info().Msg("store left Provisioning before readiness was recorded, skipping")
			m.metrics.ProvisionFinished(engine.Name, "aborted", m.cfg.now().Sub(started))
			return
		}
		logger.Error().Err(err).Msg("failed to record readiness")
		return
	}

	m.appendEvent(writeCtx, st.ID, model.EventSuccess, "All pods ready, store is live")
	m.publish(writeCtx, ready)
	m.metrics.ProvisionFinished(engine.Name, "ready", ready.UpdatedAt.Sub(ready.CreatedAt))
	logger.Info().Str("store_url", urls.StoreURL).Msg("store is ready")
}

func (m *Manager) runProvisioning(ctx context.Context, st model.Store, engine model.Engine) (deployer.URLs, error) {
	m.appendEvent(ctx, st.ID, model.EventInfo, "Creating Kubernetes namespace")
	if err := m.cluster.EnsureNamespaceExists(ctx, st.Namespace, namespaceLabels(st)); err != nil {
		return deployer.URLs{}, wrapError(KindExternalTool, fmt.Errorf("creating namespace: %w", err))
	}

	m.appendEvent(ctx, st.ID, model.EventInfo, fmt.Sprintf("Installing %s via Helm", engine.DisplayName))
	urls, err := m.deployer.Install(ctx, engine.ReleaseName(st.ID), st.Namespace, deployer.InstallParams{
		StoreID:   st.ID,
		StoreName: st.Name,
		Engine:    engine,
	})
	if err != nil {
		return deployer.URLs{}, wrapError(KindExternalTool, err)
	}

	m.appendEvent(ctx, st.ID, model.EventInfo, "Waiting for pods to become ready")
	if err := m.waitForReady(ctx, st.ID, st.Namespace); err != nil {
		return deployer.URLs{}, err
	}

	ingressURLs, err := m.cluster.ListIngressURLs(ctx, st.Namespace)
	if err != nil {
		m.log.Debug().Err(err).Str("store_id", st.ID).Msg("could not list ingress urls, using defaults")
	}
	return deployer.PreferIngress(urls, ingressURLs, engine.AdminPath), nil
}

// failProvisioning records a provisioning failure unless the store already
// left Provisioning.
func (m *Manager) failProvisioning(ctx context.Context, st model.Store, message string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	message = audit.RedactSensitiveText(message)
	failed, err := m.transition(writeCtx, st.ID, model.StatusProvisioning, model.StatusUpdate{
		Status:       model.StatusFailed,
		ErrorMessage: model.StringPtr(message),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			m.log.Info().Str("store_id", st.ID).Msg("store left Provisioning before failure was recorded, skipping")
			return
		}
		m.log.Error().Err(err).Str("store_id", st.ID).Msg("failed to record provisioning failure")
		return
	}

	m.appendEvent(writeCtx, st.ID, model.EventError, "Provisioning failed: "+message)
	m.publish(writeCtx, failed)
}

func namespaceLabels(st model.Store) map[string]string {
	return map[string]string{
		cluster.LabelStoreID:   st.ID,
		cluster.LabelStoreName: st.Name,
		cluster.LabelEngine:    st.Engine,
		cluster.LabelManagedBy: cluster.ManagedByValue,
	}
}
