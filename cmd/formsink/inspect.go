package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/FormSink/internal/app"
	"github.com/dharsanguruparan/FormSink/internal/model"
	"github.com/dharsanguruparan/FormSink/internal/spam"
)

func newTokenCmd() *cobra.Command {
	var offset time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a freshness token for a form page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), spam.NewToken(time.Now().Add(offset)))
			return nil
		},
	}
	cmd.Flags().DurationVar(&offset, "offset", 0, "Shift the token timestamp (e.g. -10m)")
	return cmd
}

func newColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table>",
		Short: "Print the stored column list of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			cols, err := a.Columns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				return fmt.Errorf("table %q has no columns", args[0])
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tTYPE")
			for i, c := range cols {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, c.Name, c.Kind)
			}
			return tw.Flush()
		},
	}
}

func newRowsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rows <table>",
		Short: "Print the newest rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			cols, err := a.Columns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stored, err := a.Rows(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(model.ColumnNames(cols), "\t"))
			for _, r := range stored {
				fmt.Fprintln(tw, strings.Join(r, "\t"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows to print")
	return cmd
}

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Print the remaining daily mail quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			left, err := a.Sender.RemainingQuota(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d messages left today\n", left, cfg.DailyQuota)
			return nil
		},
	}
}
