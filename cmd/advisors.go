package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/advisor"
	"github.com/sells-group/emla-tracker/internal/model"
)

var advisorsFile string

var advisorsCmd = &cobra.Command{
	Use:   "advisors",
	Short: "Manage the onboarding advisor directory",
}

var advisorsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk upsert advisors from a CSV or XLSX export",
	Long:  "Reads name, email and advisor key columns and upserts each advisor keyed on email.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "advisors")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		text, err := readUpload(advisorsFile)
		if err != nil {
			return err
		}
		n, skipped, err := loadAdvisors(ctx, st, text)
		if err != nil {
			return err
		}

		zap.L().Info("advisor directory loaded",
			zap.String("file", advisorsFile),
			zap.Int64("upserted", n),
			zap.Int("skipped_no_email", skipped),
		)
		return nil
	},
}

var advisorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the advisor directory as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "advisors")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		advisors, err := st.FetchAll(ctx)
		if err != nil {
			return eris.Wrap(err, "list advisors")
		}
		if advisors == nil {
			advisors = []model.Advisor{}
		}
		return writeResult(cmd.OutOrStdout(), advisors)
	},
}

type advisorUpserter interface {
	UpsertAdvisors(ctx context.Context, advisors []model.Advisor) (int64, error)
}

func loadAdvisors(ctx context.Context, st advisorUpserter, text string) (int64, int, error) {
	advisors, skipped, err := advisor.ParseDirectory(text)
	if err != nil {
		return 0, 0, err
	}
	if len(advisors) == 0 {
		return 0, skipped, eris.New("advisor file has no rows with an email")
	}
	n, err := st.UpsertAdvisors(ctx, advisors)
	if err != nil {
		return 0, skipped, eris.Wrap(err, "upsert advisors")
	}
	return n, skipped, nil
}

func init() {
	advisorsLoadCmd.Flags().StringVar(&advisorsFile, "file", "", "path to the advisor CSV or XLSX export (required)")
	_ = advisorsLoadCmd.MarkFlagRequired("file")
	advisorsCmd.AddCommand(advisorsLoadCmd, advisorsListCmd)
	rootCmd.AddCommand(advisorsCmd)
}
