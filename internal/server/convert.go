package server

import (
	"encoding/json"

	"github.com/SHESHU45/UrumiAssignment/internal/manager"
	"github.com/SHESHU45/UrumiAssignment/internal/model"
	"github.com/SHESHU45/UrumiAssignment/internal/reconcile"
	"github.com/SHESHU45/UrumiAssignment/pkg/types"
)

func toAPIStore(st model.Store) types.Store {
	return types.Store{
		ID:           st.ID,
		Name:         st.Name,
		Engine:       st.Engine,
		Status:       st.Status.String(),
		Namespace:    st.Namespace,
		StoreURL:     st.StoreURL,
		AdminURL:     st.AdminURL,
		ErrorMessage: st.ErrorMessage,
		CreatedAt:    st.CreatedAt.UTC(),
		UpdatedAt:    st.UpdatedAt.UTC(),
		ReadyAt:      st.ReadyAt,
		DeletedAt:    st.DeletedAt,
	}
}

func toAPIDetails(details manager.Details) types.StoreDetails {
	out := types.StoreDetails{
		Store:     toAPIStore(details.Store),
		Pods:      make([]types.Pod, 0, len(details.Pods)),
		K8sEvents: make([]types.ClusterEvent, 0, len(details.ClusterEvents)),
		Events:    toAPIEvents(details.Events),
	}
	for _, pod := range details.Pods {
		out.Pods = append(out.Pods, types.Pod{
			Name:     pod.Name,
			Status:   pod.Phase,
			Ready:    pod.Ready,
			Restarts: pod.RestartCount,
		})
	}
	for _, ev := range details.ClusterEvents {
		out.K8sEvents = append(out.K8sEvents, types.ClusterEvent{
			Type:      ev.Type,
			Reason:    ev.Reason,
			Message:   ev.Message,
			Object:    ev.Object,
			Timestamp: ev.Timestamp.UTC(),
		})
	}
	return out
}

func toAPIEvents(items []model.StoreEvent) []types.StoreEvent {
	out := make([]types.StoreEvent, 0, len(items))
	for _, item := range items {
		out = append(out, types.StoreEvent{
			ID:        item.ID,
			StoreID:   item.StoreID,
			EventType: string(item.Type),
			Message:   item.Message,
			CreatedAt: item.CreatedAt.UTC(),
		})
	}
	return out
}

func toAPIAudit(entry model.AuditEntry) types.AuditEntry {
	out := types.AuditEntry{
		ID:        entry.ID,
		Action:    entry.Action,
		CreatedAt: entry.CreatedAt.UTC(),
	}
	if entry.StoreID != "" {
		out.StoreID = model.StringPtr(entry.StoreID)
	}
	if entry.IPAddress != "" {
		out.IPAddress = model.StringPtr(entry.IPAddress)
	}
	if len(entry.Details) > 0 && json.Valid(entry.Details) {
		out.Details = json.RawMessage(entry.Details)
	}
	return out
}

func toAPIMetrics(snapshot manager.MetricsSnapshot) types.Metrics {
	byStatus := make(map[string]int, len(model.AllStatuses))
	for _, status := range model.AllStatuses {
		byStatus[status.String()] = 0
	}
	for status, count := range snapshot.ByStatus {
		byStatus[status.String()] = count
	}
	return types.Metrics{
		TotalActive:             snapshot.TotalActive,
		TotalCreated:            snapshot.TotalCreated,
		TotalDeleted:            snapshot.TotalDeleted,
		ByStatus:                byStatus,
		AvgProvisionTimeSeconds: snapshot.AvgProvisionTimeSeconds,
		ActiveProvisions:        snapshot.ActiveProvisions,
		MaxConcurrentProvisions: snapshot.MaxConcurrentProvisions,
	}
}

func toAPIReconcileStatus(status reconcile.Status) types.ReconcileStatus {
	return types.ReconcileStatus{
		Ready:          status.Ready,
		InProgress:     status.InProgress,
		LastAttemptAt:  status.LastAttemptAt,
		LastRunAt:      status.LastRunAt,
		LastError:      status.LastError,
		SuccessfulRuns: status.SuccessfulRuns,
		FailedRuns:     status.FailedRuns,
		LastCounts: types.ReconcileCounts{
			Checked:          status.LastCounts.Checked,
			MarkedReady:      status.LastCounts.MarkedReady,
			MarkedFailed:     status.LastCounts.MarkedFailed,
			Skipped:          status.LastCounts.Skipped,
			Errors:           status.LastCounts.Errors,
			OrphanNamespaces: status.LastCounts.OrphanNamespaces,
		},
	}
}
