package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/export"
	"github.com/sells-group/emla-tracker/internal/ingest"
	"github.com/sells-group/emla-tracker/internal/result"
	"github.com/sells-group/emla-tracker/internal/tabular"
)

var (
	uploadFile     string
	uploadType     string
	uploadNoExport bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Ingest a customer onboarding export (CSV or XLSX)",
	Long: "Splits the file into size-bounded batches, runs each through the ingestion pipeline and prints the merged result. " +
		"Failed rows are written to the configured export sink.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "upload")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := newPipeline(st)
		if err != nil {
			return err
		}

		text, err := readUpload(uploadFile)
		if err != nil {
			return err
		}

		res, err := processUpload(ctx, p, text, uploadType, cfg.Upload.MaxBatchBytes, cfg.Upload.MaxBatchRows)
		if err != nil {
			return err
		}

		if !uploadNoExport && res.FailedRowsCSV != "" {
			sink, err := newSink(ctx)
			if err != nil {
				return err
			}
			if _, err := export.FailedRows(ctx, sink, res, time.Now()); err != nil {
				return err
			}
		}

		return writeResult(cmd.OutOrStdout(), res)
	},
}

type processor interface {
	Process(ctx context.Context, in ingest.Input) (*result.UploadResult, error)
}

// processUpload runs text through p in batches and merges the results. Row
// numbers keep counting from the original file across batches.
func processUpload(ctx context.Context, p processor, text, hint string, maxBytes, maxRows int) (*result.UploadResult, error) {
	batches := tabular.SplitBatches(text, maxBytes, maxRows)
	if len(batches) == 0 {
		return nil, tabular.ErrEmptyInput
	}

	merged := &result.UploadResult{}
	offset := 0
	for i, batch := range batches {
		res, err := p.Process(ctx, ingest.Input{CSVText: batch, DialectHint: hint, RowOffset: offset})
		if err != nil {
			return nil, eris.Wrapf(err, "upload: batch %d of %d", i+1, len(batches))
		}
		merged.Merge(res)
		offset += len(tabular.SplitLines(batch)) - 1

		zap.L().Info("upload batch done",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("rows", res.TotalRows),
		)
	}
	return merged.Finalize(), nil
}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write result")
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "path to the CSV or XLSX export (required)")
	uploadCmd.Flags().StringVar(&uploadType, "type", "", "upload type hint (integration, public, private); detected when empty")
	uploadCmd.Flags().BoolVar(&uploadNoExport, "no-export", false, "do not write the failed-rows file")
	_ = uploadCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(uploadCmd)
}
