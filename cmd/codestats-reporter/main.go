package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rubikoid/codestats-reporter/internal/config"
	"github.com/Rubikoid/codestats-reporter/internal/language"
	"github.com/Rubikoid/codestats-reporter/internal/logger"
	"github.com/Rubikoid/codestats-reporter/internal/metrics"
	"github.com/Rubikoid/codestats-reporter/internal/reporter"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// runtime is the subset of reporter.Reporter the commands need.
type runtime interface {
	RecordEdit(doc language.Document)
	AddXP(name string, n uint32)
	SendNow()
	Run(ctx context.Context) error
	Close()
}

// Seams for tests.
var (
	loadConfig       = config.Load
	registerMetrics  = metrics.Register
	newSignalContext = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	}
	newReporter = func(cfg *config.Config) runtime { return reporter.New(cfg) }
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

// newRootCmd builds and returns the root cobra command. Extracted from main
// so that tests can invoke it directly without spawning a subprocess.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "codestats-reporter",
		Short: "Report editing activity to Code::Stats",
		Long: `Tracks per-language editing activity and periodically reports accumulated
XP to a Code::Stats server as debounced, rate-limited pulses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runReporter,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Read language ids from stdin, one edit per line (same as running without a subcommand)",
		RunE:  runReporter,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "send LANG=XP [LANG=XP ...]",
		Short: "Send a single pulse with the given XP amounts and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSend,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codestats-reporter %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return rootCmd
}

// editLine adapts one stdin line to the resolver's document view: the line
// is the host language id, an empty line is a document without metadata.
type editLine string

func (l editLine) Language() *language.Metadata {
	if l == "" {
		return nil
	}
	return &language.Metadata{ID: string(l)}
}

func runReporter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	initLogging(cfg.LogLevel, cfg.LogFormat)
	registerMetrics()

	ctx, cancel := newSignalContext()
	defer cancel()

	r := newReporter(cfg)
	defer r.Close()

	go func() {
		defer cancel()
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			r.RecordEdit(editLine(strings.TrimSpace(sc.Text())))
		}
		if err := sc.Err(); err != nil {
			log.Warn().Err(err).Msg("stdin read error")
		}
	}()

	return r.Run(ctx)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.Key == "" {
		return fmt.Errorf("no API key configured, nothing would be sent (set CODESTATS_KEY)")
	}

	initLogging(cfg.LogLevel, cfg.LogFormat)

	amounts, err := parseAmounts(args)
	if err != nil {
		return err
	}

	r := newReporter(cfg)
	for lang, n := range amounts {
		r.AddXP(lang, n)
	}
	// Close flushes with ForceSend, bypassing the debounce window.
	r.Close()
	return nil
}

// parseAmounts turns "Go=5" style arguments into language/XP pairs.
func parseAmounts(args []string) (map[string]uint32, error) {
	amounts := make(map[string]uint32, len(args))
	for _, arg := range args {
		lang, raw, found := strings.Cut(arg, "=")
		if !found || lang == "" {
			return nil, fmt.Errorf("invalid argument %q, expected LANG=XP", arg)
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid XP amount in %q, expected a positive integer", arg)
		}
		amounts[lang] += uint32(n)
	}
	return amounts, nil
}

func initLogging(level string, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	redacted := logger.NewRedactWriter(os.Stderr)
	if format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: redacted})
	} else {
		log.Logger = zerolog.New(redacted).With().Timestamp().Logger()
	}

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
