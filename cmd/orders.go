package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/lehigh-university-libraries/facekiosk/internal/ledger"
	"github.com/spf13/cobra"
)

func newOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect the order ledger",
		Long: `Reads the Parquet order ledger written by the kiosk. Every confirmed
payment is one order with the purchased photo paths.`,
	}

	cmd.AddCommand(newOrdersListCmd())
	cmd.AddCommand(newOrdersExportCmd())

	return cmd
}

func newOrdersListCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print recorded orders as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			day, err := parseDay(since)
			if err != nil {
				return err
			}
			l, err := ledger.Open(cfg.LedgerPath)
			if err != nil {
				return err
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("PAID AT", "TRANSACTION", "COLLECTION", "PHOTOS", "PATHS")
			count := 0
			for _, o := range l.List() {
				if !day.IsZero() && o.PaidAt.Before(day) {
					continue
				}
				t.Row(
					o.PaidAt.Local().Format(time.DateTime),
					o.TransactionID,
					o.Collection,
					strconv.Itoa(len(o.Paths)),
					strings.Join(o.Paths, "\n"),
				)
				count++
			}
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No orders recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only orders paid on or after this day (YYYY-MM-DD)")

	return cmd
}

func newOrdersExportCmd() *cobra.Command {
	var (
		since  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded orders as YAML",
		Example: `  # Export today's orders for the print desk
  facekiosk orders export --since 2026-07-04 --output orders.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			day, err := parseDay(since)
			if err != nil {
				return err
			}
			l, err := ledger.Open(cfg.LedgerPath)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return l.ExportYAML(cmd.OutOrStdout(), day)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := l.ExportYAML(f, day); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Orders written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only orders paid on or after this day (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}
