package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/facekiosk/internal/config"
	"github.com/lehigh-university-libraries/facekiosk/internal/facesearch"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facekiosk",
		Short: "Photo kiosk for finding and buying event photos by face",
		Long: `Facekiosk runs the guest flow of a photo kiosk: capture a photo,
search an event collection for matching faces, select photos, pay and take
them home as a download, by email or as a print.

The face search, payment and delivery backends are reached over the
FaceSearch HTTP API.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			logLevel := slog.LevelInfo
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				logLevel = slog.LevelDebug
			}
			slog.SetDefault(newLogger(logLevel))
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("api-url", "", "FaceSearch API base URL (env: FACEKIOSK_API_URL)")
	flags.String("guest-session", "", "Guest session cookie value (env: FACEKIOSK_GUEST_SESSION)")
	flags.Duration("poll-interval", 0, "Pause between payment status checks (env: FACEKIOSK_POLL_INTERVAL)")
	flags.Duration("poll-timeout", 0, "Give up on a pending payment after this long, 0 waits forever (env: FACEKIOSK_POLL_TIMEOUT)")
	flags.Float64("rate-limit", 0, "Maximum API requests per second, 0 disables (env: FACEKIOSK_RATE_LIMIT)")
	flags.String("ledger", "", "Order ledger Parquet file (env: FACEKIOSK_LEDGER)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newKioskCmd())
	cmd.AddCommand(newOrdersCmd())

	return cmd
}

// loadConfig resolves the configuration, letting explicitly set flags win
// over the file and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL, _ = flags.GetString("api-url")
	}
	if flags.Changed("guest-session") {
		cfg.GuestSession, _ = flags.GetString("guest-session")
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval, _ = flags.GetDuration("poll-interval")
	}
	if flags.Changed("poll-timeout") {
		cfg.PollTimeout, _ = flags.GetDuration("poll-timeout")
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit, _ = flags.GetFloat64("rate-limit")
	}
	if flags.Changed("ledger") {
		cfg.LedgerPath, _ = flags.GetString("ledger")
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Lookup("session-ttl") != nil && flags.Changed("session-ttl") {
		cfg.SessionTTL, _ = flags.GetDuration("session-ttl")
	}
	if flags.Lookup("list-sessions") != nil && flags.Changed("list-sessions") {
		cfg.ListSessions, _ = flags.GetBool("list-sessions")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger writes text to a terminal and JSON when stderr is redirected
func newLogger(level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func newClient(cfg *config.Config) *facesearch.Client {
	client := facesearch.NewClient(cfg.APIURL, cfg.RequestTimeout)
	client.GuestSession = cfg.GuestSession
	if cfg.RateLimit > 0 {
		client.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}
	slog.Debug("FaceSearch client configured", "url", cfg.APIURL, "timeout", cfg.RequestTimeout, "rate_limit", cfg.RateLimit)
	return client
}

func newServices(client *facesearch.Client) kiosk.Services {
	return kiosk.Services{
		Search:      client,
		Payment:     client,
		Delivery:    client,
		Collections: client,
	}
}

func controllerOptions(cfg *config.Config) kiosk.Options {
	return kiosk.Options{
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	}
}

// parseDay accepts a YYYY-MM-DD date in local time
func parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return day, nil
}
