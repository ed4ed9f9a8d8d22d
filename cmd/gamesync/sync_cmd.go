package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/gamesync/modules/catalog/services"
	"github.com/iota-uz/gamesync/pkg/metrics"
)

type syncOptions struct {
	file        string
	sheet       string
	report      string
	metricsAddr string
}

type syncSummary struct {
	RunID           string   `json:"run_id"`
	Rows            int      `json:"rows"`
	Entries         int      `json:"entries"`
	Updated         int      `json:"updated"`
	Eligible        int      `json:"eligible"`
	NotFound        []string `json:"not_found"`
	Failed          int      `json:"failed"`
	Chunks          int      `json:"chunks"`
	InvalidEntryIDs []string `json:"invalid_entry_ids"`
	DurationMS      int64    `json:"duration_ms"`
}

func newSyncCmd(g *globalOptions) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Update matched entries from a spreadsheet and republish them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "Spreadsheet to import, .xlsx or .csv (required)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Worksheet name (default: first sheet)")
	cmd.Flags().StringVar(&opts.report, "report", "", "Write the full JSON run report to this path")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the sync runs")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSync(ctx context.Context, g *globalOptions, opts syncOptions, out io.Writer) error {
	rt, err := newRuntime(ctx, g, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	sheet, err := rt.readSheet(opts.file, opts.sheet)
	if err != nil {
		return err
	}

	addr := opts.metricsAddr
	if addr == "" && rt.conf.Prometheus.Enabled {
		addr = rt.conf.Prometheus.Addr
	}
	if addr != "" {
		srv, err := metrics.Listen(addr, rt.conf.Prometheus.Path, rt.log)
		if err != nil {
			return withCode(exitUsage, err)
		}
		rt.log.WithField("addr", srv.Addr()).Info("serving metrics")
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	svc, err := rt.syncService(false)
	if err != nil {
		return withCode(exitUsage, err)
	}

	rt.bus.Subscribe(func(e *services.ChunkCompletedEvent) {
		rt.log.WithFields(logrus.Fields{
			"chunk":     e.Result.Index + 1,
			"of":        e.Total,
			"outcome":   e.Result.Outcome,
			"published": e.Result.Published,
		}).Info("chunk completed")
	})

	report, runErr := svc.ProcessMetadata(ctx, sheet.Rows)
	if report != nil && opts.report != "" {
		if err := writeJSONFile(opts.report, report); err != nil {
			rt.log.WithError(err).Error("failed to write report")
		}
	}
	if runErr != nil {
		if is(runErr, services.ErrSnapshotFetch) {
			return withCode(exitRemote, runErr)
		}
		return runErr
	}

	if err := writeJSONLine(out, summarize(report)); err != nil {
		return err
	}
	if report.Partial() {
		return withCode(exitPartial, fmt.Errorf("sync finished with %d failed updates and %d invalid entries",
			len(report.Failed), len(report.InvalidEntryIDs)))
	}
	return nil
}

func summarize(r *services.Report) syncSummary {
	return syncSummary{
		RunID:           r.RunID.String(),
		Rows:            r.Rows,
		Entries:         r.Entries,
		Updated:         r.Updated,
		Eligible:        r.Eligible,
		NotFound:        r.NotFound,
		Failed:          len(r.Failed),
		Chunks:          len(r.Bulk.Chunks),
		InvalidEntryIDs: r.InvalidEntryIDs,
		DurationMS:      r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}
}
