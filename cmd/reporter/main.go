// cmd/reporter/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tamzrod/onewire-reporter/internal/config"
	"github.com/tamzrod/onewire-reporter/internal/link"
	"github.com/tamzrod/onewire-reporter/internal/protocol"
	"github.com/tamzrod/onewire-reporter/internal/station"
	"github.com/tamzrod/onewire-reporter/internal/writer"
)

var Commit string

var flags struct {
	config   string
	simulate bool
	port     string
	verbose  bool
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "reporter",
	Short:        "Poll DS18B20 sensors on a 1-wire bus and report readings to a host",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Commit)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flags.config, "config", "c", "", "YAML config file (defaults apply when absent)")
	rootCmd.Flags().BoolVar(&flags.simulate, "simulate", false, "use the in-memory bus instead of hardware")
	rootCmd.Flags().StringVar(&flags.port, "port", "", "serial port for the host link (default stdin/stdout)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(versionCmd)
}

func run(ctx context.Context, cmd *cobra.Command) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg := &config.Config{}
	if flags.config != "" {
		loaded, err := config.Load(flags.config)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("simulate") {
		cfg.Bus.Simulate = flags.simulate
	}
	if cmd.Flags().Changed("port") {
		cfg.Link.Port = flags.port
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}

	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// --------------------
	// Bus + host link
	// --------------------

	b, closeBus, err := openBus(cfg.Bus, logger)
	if err != nil {
		return fmt.Errorf("bus open failed: %w", err)
	}
	defer closeBus()

	hl, err := link.Open(link.Config{
		Port:     cfg.Link.Port,
		BaudRate: cfg.Link.BaudRate,
		Timeout:  time.Duration(cfg.Link.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("host link open failed: %w", err)
	}
	defer hl.Close()

	logger.Info("host link open", zap.String("link", hl.Name()), zap.Int("baud", cfg.Link.BaudRate))

	out := protocol.NewWriter(hl.Writer(), logger.Named("link"))

	// --------------------
	// Register mirror (optional)
	// --------------------

	mirror, closeMirror, err := writer.Build(cfg.Mirror, cfg.Poll.Capacity, logger.Named("mirror"))
	if err != nil {
		return fmt.Errorf("mirror build failed: %w", err)
	}
	defer closeMirror()

	// --------------------
	// Station
	// --------------------

	st, err := station.Build(cfg, b, out, mirror, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st.Start(time.Now())

	lines := link.ReadLines(ctx, hl.Reader(), logger.Named("link"))
	return st.Run(ctx, lines)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
