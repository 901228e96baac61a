package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/relaybus/internal/broker"
	"github.com/nextlevelbuilder/relaybus/internal/config"
	"github.com/nextlevelbuilder/relaybus/internal/gateway"
	"github.com/nextlevelbuilder/relaybus/internal/policy"
	"github.com/nextlevelbuilder/relaybus/internal/scheduler"
	"github.com/nextlevelbuilder/relaybus/internal/store"
	"github.com/nextlevelbuilder/relaybus/internal/store/file"
	"github.com/nextlevelbuilder/relaybus/internal/store/pg"
	"github.com/nextlevelbuilder/relaybus/internal/telemetry"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/relaybus/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relaybus [policy_file_path]",
	Short: "relaybus — policy-governed message broker gateway",
	Long: "relaybus accepts WebSocket connections and routes broadcast, listen, " +
		"request, and response frames between them, gating every frame through " +
		"a compiled policy document.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policyPath := ""
		if len(args) == 1 {
			policyPath = args[0]
		}
		return runServe(policyPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $RELAYBUS_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaybus %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("RELAYBUS_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runServe loads config, compiles the policy, and runs the gateway
// server until interrupted, wiring in the audit store, telemetry, and
// heartbeat scheduler described by the config. An explicit
// policyPathOverride (the CLI's positional argument, per spec.md §6)
// always wins over the config file's policy.path.
func runServe(policyPathOverride string) error {
	logger := newLogger()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if policyPathOverride != "" {
		cfg.Policy.Path = policyPathOverride
	}
	if cfg.Policy.Path == "" {
		return fmt.Errorf("no policy file specified: pass one as an argument or set policy.path in config")
	}

	src, err := os.ReadFile(cfg.Policy.Path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	p, err := policy.Compile(string(src))
	if err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}
	for _, w := range p.Warnings {
		logger.Warn("policy: " + w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var tracer *telemetry.Provider
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint != "" {
		tracer, err = telemetry.Setup(ctx, telemetry.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
		})
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		defer tracer.Shutdown(context.Background())
	}

	audit, err := openAuditStore(cfg)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	if audit != nil {
		defer audit.Close()
	}

	b := broker.New(logger)
	gw := gateway.NewServer(cfg, b, p, logger, audit, tracer)

	// errgroup ties the gateway's serve loop to its background
	// goroutines: a gateway error cancels the shared context, which
	// stops the reload watcher and heartbeat too. The watcher and the
	// heartbeat always return nil, so one of them stopping on its own
	// (an unwatchable file, an invalid cron expression) leaves the
	// gateway running.
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Policy.HotReload {
		g.Go(func() error {
			watchPolicyReload(gctx, cfg.Policy.Path, gw, logger)
			return nil
		})
	}

	if cfg.Heartbeat.Enabled && cfg.Heartbeat.Cron != "" {
		hb := scheduler.NewHeartbeat(cfg.Heartbeat.Cron, cfg.Heartbeat.Channel, b, logger)
		g.Go(func() error {
			hb.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		return gw.Start(gctx)
	})

	return g.Wait()
}

func openAuditStore(cfg *config.Config) (store.AuditStore, error) {
	if cfg.Database.UsesPostgres() {
		return pg.NewAuditStore(cfg.Database.PostgresDSN)
	}
	return file.Open("audit-log", time.Now())
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relaybus:", err)
		os.Exit(1)
	}
}
