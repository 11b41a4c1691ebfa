package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/SHESHU45/UrumiAssignment/pkg/types"
)

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) printer {
	return printer{w: w, format: format}
}

// structured writes v as JSON or YAML. It reports false for table output.
func (p printer) structured(v any) (bool, error) {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		// YAML keys follow the JSON field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func (p printer) table(header string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (p printer) stores(stores []types.Store) error {
	if done, err := p.structured(types.StoreListResponse{Stores: stores}); done {
		return err
	}
	rows := make([][]string, 0, len(stores))
	for _, st := range stores {
		rows = append(rows, storeRow(st))
	}
	return p.table("ID\tNAME\tENGINE\tSTATUS\tURL\tAGE", rows)
}

func (p printer) store(st *types.Store) error {
	if done, err := p.structured(types.StoreResponse{Store: *st}); done {
		return err
	}
	return p.table("ID\tNAME\tENGINE\tSTATUS\tURL\tAGE", [][]string{storeRow(*st)})
}

func (p printer) details(d *types.StoreDetails) error {
	if done, err := p.structured(types.StoreDetailsResponse{Store: *d}); done {
		return err
	}

	fields := [][]string{
		{"ID:", d.ID},
		{"Name:", d.Name},
		{"Engine:", d.Engine},
		{"Status:", d.Status},
		{"Namespace:", d.Namespace},
		{"Store URL:", orDash(d.StoreURL)},
		{"Admin URL:", orDash(d.AdminURL)},
		{"Created:", d.CreatedAt.Format(time.RFC3339)},
	}
	if d.ReadyAt != nil {
		fields = append(fields, []string{"Ready:", d.ReadyAt.Format(time.RFC3339)})
	}
	if d.ErrorMessage != nil {
		fields = append(fields, []string{"Error:", *d.ErrorMessage})
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 1, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\n", f[0], f[1])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(d.Pods) > 0 {
		fmt.Fprintln(p.w, "\nPods:")
		rows := make([][]string, 0, len(d.Pods))
		for _, pod := range d.Pods {
			rows = append(rows, []string{pod.Name, pod.Status, fmt.Sprint(pod.Ready), fmt.Sprint(pod.Restarts)})
		}
		if err := p.table("NAME\tSTATUS\tREADY\tRESTARTS", rows); err != nil {
			return err
		}
	}
	if len(d.Events) > 0 {
		fmt.Fprintln(p.w, "\nEvents:")
		if err := p.eventTable(d.Events); err != nil {
			return err
		}
	}
	return nil
}

func (p printer) events(items []types.StoreEvent) error {
	if done, err := p.structured(types.EventListResponse{Events: items}); done {
		return err
	}
	return p.eventTable(items)
}

func (p printer) eventTable(items []types.StoreEvent) error {
	rows := make([][]string, 0, len(items))
	for _, ev := range items {
		rows = append(rows, []string{ev.CreatedAt.Format(time.RFC3339), ev.StoreID, ev.EventType, ev.Message})
	}
	return p.table("TIME\tSTORE\tTYPE\tMESSAGE", rows)
}

func (p printer) metrics(m *types.Metrics) error {
	if done, err := p.structured(types.MetricsResponse{Metrics: *m}); done {
		return err
	}

	avg := "-"
	if m.AvgProvisionTimeSeconds != nil {
		avg = (time.Duration(*m.AvgProvisionTimeSeconds) * time.Second).String()
	}
	rows := [][]string{
		{"active", fmt.Sprint(m.TotalActive)},
		{"created", fmt.Sprint(m.TotalCreated)},
		{"deleted", fmt.Sprint(m.TotalDeleted)},
		{"provisioning slots", fmt.Sprintf("%d/%d", m.ActiveProvisions, m.MaxConcurrentProvisions)},
		{"avg provision time", avg},
	}
	statuses := make([]string, 0, len(m.ByStatus))
	for status := range m.ByStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		rows = append(rows, []string{"status " + status, fmt.Sprint(m.ByStatus[status])})
	}
	return p.table("METRIC\tVALUE", rows)
}

func (p printer) audit(entries []types.AuditEntry) error {
	if done, err := p.structured(types.AuditLogResponse{AuditLog: entries}); done {
		return err
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.CreatedAt.Format(time.RFC3339),
			entry.Action,
			orDash(entry.StoreID),
			orDash(entry.IPAddress),
		})
	}
	return p.table("TIME\tACTION\tSTORE\tIP", rows)
}

func (p printer) reconcile(status *types.ReconcileStatus) error {
	if done, err := p.structured(status); done {
		return err
	}
	lastRun := "-"
	if status.LastRunAt != nil {
		lastRun = status.LastRunAt.Format(time.RFC3339)
	}
	lastError := status.LastError
	if lastError == "" {
		lastError = "-"
	}
	c := status.LastCounts
	return p.table("FIELD\tVALUE", [][]string{
		{"ready", fmt.Sprint(status.Ready)},
		{"in progress", fmt.Sprint(status.InProgress)},
		{"last run", lastRun},
		{"last error", lastError},
		{"runs ok/failed", fmt.Sprintf("%d/%d", status.SuccessfulRuns, status.FailedRuns)},
		{"last pass", fmt.Sprintf("checked=%d ready=%d failed=%d skipped=%d errors=%d orphans=%d",
			c.Checked, c.MarkedReady, c.MarkedFailed, c.Skipped, c.Errors, c.OrphanNamespaces)},
	})
}

// message prints a one-line confirmation, or v in structured formats.
func (p printer) message(v any, text string) error {
	if done, err := p.structured(v); done {
		return err
	}
	_, err := fmt.Fprintln(p.w, text)
	return err
}

func storeRow(st types.Store) []string {
	return []string{st.ID, st.Name, st.Engine, st.Status, orDash(st.StoreURL), age(st.CreatedAt)}
}

func orDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String()
}

func contextWithTimeout(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}
