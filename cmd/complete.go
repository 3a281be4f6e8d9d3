package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var completeIDs []string

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Mark customer records completed today",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "complete")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := markCompleted(ctx, st, completeIDs, time.Now().UTC())
		if err != nil {
			return err
		}
		zap.L().Info("customers completed", zap.Int("requested", len(completeIDs)), zap.Int("updated", n))
		return nil
	},
}

type completer interface {
	SetCompleted(ctx context.Context, ids []string, day time.Time) (int, error)
}

func markCompleted(ctx context.Context, st completer, ids []string, day time.Time) (int, error) {
	var clean []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return 0, eris.New("at least one --id is required")
	}
	n, err := st.SetCompleted(ctx, clean, day)
	if err != nil {
		return 0, eris.Wrap(err, "complete customers")
	}
	return n, nil
}

func init() {
	completeCmd.Flags().StringSliceVar(&completeIDs, "id", nil, "customer record ID (repeatable)")
	_ = completeCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(completeCmd)
}
