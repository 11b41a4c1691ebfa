package manager

import (
	"context"
	"errors"
	"time"
)

// waitForReady polls cluster readiness for namespace until it reports ready
// or ctx ends. Transient query errors are logged and retried on the next
// poll; only the deadline ends the wait with a timeout.
func (m *Manager) waitForReady(ctx context.Context, storeID, namespace string) error {
	for {
		ready, err := m.cluster.AllPodsReady(ctx, namespace)
		switch {
		case err != nil && ctx.Err() == nil:
			m.log.Debug().Err(err).Str("store_id", storeID).Str("namespace", namespace).Msg("readiness check failed")
		case err == nil && ready:
			return nil
		}

		if sleepErr := m.cfg.sleep(ctx, m.cfg.pollInterval); sleepErr != nil {
			if errors.Is(sleepErr, context.DeadlineExceeded) {
				return newError(KindProvisioningTimeout,
					"Provisioning timeout: pods not ready after %ds", int64(m.cfg.provisioningTimeout/time.Second))
			}
			return sleepErr
		}
	}
}

func sleepWithContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
