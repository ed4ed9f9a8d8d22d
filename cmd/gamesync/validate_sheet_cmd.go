package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/gamesync/modules/catalog/domain/gamerow"
	"github.com/iota-uz/gamesync/modules/catalog/services"
)

type validateSheetOptions struct {
	file   string
	sheet  string
	strict bool
}

type sheetRowResult struct {
	Line    int             `json:"line"`
	Key     string          `json:"key"`
	Payload gamerow.Payload `json:"payload"`
	Warning string          `json:"warning,omitempty"`
}

func newValidateSheetCmd(g *globalOptions) *cobra.Command {
	var opts validateSheetOptions

	cmd := &cobra.Command{
		Use:   "validate-sheet",
		Short: "Normalize every spreadsheet row offline and print the resulting payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateSheet(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "Spreadsheet to check, .xlsx or .csv (required)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Worksheet name (default: first sheet)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail when a row has no key or produces an empty payload")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runValidateSheet(ctx context.Context, g *globalOptions, opts validateSheetOptions, out io.Writer) error {
	rt, err := newRuntime(ctx, g, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	sheet, err := rt.readSheet(opts.file, opts.sheet)
	if err != nil {
		return err
	}
	builder, err := services.NewMetadataBuilder(rt.catalog, rt.conf.Sync.BetCurrency)
	if err != nil {
		return withCode(exitUsage, err)
	}

	problems := 0
	for i, row := range sheet.Rows {
		res := sheetRowResult{
			Line:    sheet.Lines[i],
			Key:     rt.catalog.ResolveKey(row.String(rt.conf.Sync.KeyColumn), row, nil),
			Payload: builder.Build(row),
		}
		switch {
		case res.Key == "":
			res.Warning = "missing key"
			problems++
		case res.Payload.IsEmpty():
			res.Warning = "no recognized values"
			problems++
		}
		if err := writeJSONLine(out, res); err != nil {
			return err
		}
	}
	if opts.strict && problems > 0 {
		return withCode(exitValidation, fmt.Errorf("%d of %d rows have problems", problems, len(sheet.Rows)))
	}
	return nil
}
