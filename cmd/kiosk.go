package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/lehigh-university-libraries/facekiosk/internal/ledger"
	"github.com/lehigh-university-libraries/facekiosk/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newKioskCmd() *cobra.Command {
	var (
		outputDir string
		logFile   string
	)

	cmd := &cobra.Command{
		Use:   "kiosk",
		Short: "Run a single kiosk session in the terminal",
		Long: `Runs the guest flow in the terminal. Photos are captured from image
files, and purchased downloads and print sheets are written to the output
directory.`,
		Example: `  # Save purchases to ./purchases and log to kiosk.log
  facekiosk kiosk --output purchases --log-file kiosk.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("kiosk needs an interactive terminal, use serve for a browser front end")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// The terminal belongs to the TUI; logs go to a file or nowhere
			var logOutput io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("cannot open log file %s: %w", logFile, err)
				}
				defer f.Close()
				logOutput = f
			}
			level := slog.LevelInfo
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: level})))

			orders, err := ledger.Open(cfg.LedgerPath)
			if err != nil {
				return err
			}

			events := tui.NewEvents()
			opts := controllerOptions(cfg)
			opts.SessionID = uuid.NewString()
			opts.Recorder = orders
			opts.OnChange = events.OnChange
			opts.OnNotice = events.OnNotice

			ctrl := kiosk.New(newServices(newClient(cfg)), opts)
			defer ctrl.Close()

			program := tea.NewProgram(tui.NewModel(cmd.Context(), ctrl, outputDir), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			events.SetProgram(program)

			slog.Info("Kiosk session started", "session_id", ctrl.ID())
			_, err = program.Run()
			return err
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "purchases", "Directory for downloads and print sheets")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file")

	return cmd
}
