package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/gamesync/modules/catalog/services"
)

type previewOptions struct {
	file   string
	sheet  string
	report string
}

func newPreviewCmd(g *globalOptions) *cobra.Command {
	var opts previewOptions

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the field changes a sync would make, without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "Spreadsheet to preview, .xlsx or .csv (required)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Worksheet name (default: first sheet)")
	cmd.Flags().StringVar(&opts.report, "report", "", "Write the full JSON preview report to this path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runPreview(ctx context.Context, g *globalOptions, opts previewOptions, out io.Writer) error {
	rt, err := newRuntime(ctx, g, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	sheet, err := rt.readSheet(opts.file, opts.sheet)
	if err != nil {
		return err
	}
	svc, err := rt.syncService(true)
	if err != nil {
		return withCode(exitUsage, err)
	}

	report, err := svc.ProcessMetadata(ctx, sheet.Rows)
	if err != nil {
		if is(err, services.ErrSnapshotFetch) {
			return withCode(exitRemote, err)
		}
		return err
	}
	for _, d := range report.Diffs {
		if err := writeJSONLine(out, d); err != nil {
			return err
		}
	}
	for _, code := range report.NotFound {
		if err := writeJSONLine(out, map[string]string{"key": code, "status": "not_found"}); err != nil {
			return err
		}
	}
	if opts.report != "" {
		if err := writeJSONFile(opts.report, report); err != nil {
			return err
		}
	}
	return nil
}
