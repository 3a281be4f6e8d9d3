package main

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync customers from the customer master feed",
	Long:  "Fetches every CustomerMaster record, inserts new customers as Not Started and applies delta updates to existing ones.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "sync")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		syncer, err := newSyncer(ctx, st)
		if err != nil {
			return err
		}
		res, err := syncer.Run(ctx)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
