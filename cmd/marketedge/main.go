// Command marketedge is the cross-venue market-data aggregator's
// process entry point: it loads configuration, then hands off to the
// orchestrator for discovery, registration, wiring, and the
// connect+subscribe+run+snapshot runtime loop described in spec.md
// §4.J. Only two subcommands exist — "run" (the real process) and
// "selftest" (an offline resilience check with no network access,
// grounded on the teacher's own selftest subcommand) — because the
// order-placement, dashboard, and account-state surfaces this repo's
// scope excludes have no CLI presence to add here.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kestrel-quant/marketedge/internal/config"
	"github.com/kestrel-quant/marketedge/internal/fixedpoint"
	"github.com/kestrel-quant/marketedge/internal/orchestrator"
	"github.com/kestrel-quant/marketedge/internal/symbol"
)

const (
	appName = "marketedge"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cross-venue perpetual futures market-data aggregator",
		Version: version,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Discover the liquid universe and stream cross-venue spreads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregator(configPath)
		},
	}

	selftestCmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run offline invariant checks (no network)",
		Long:  "Exercises the fixed-point scalar and symbol registry invariants spec.md §8 requires, without connecting to either venue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfTest()
		},
	}

	rootCmd.AddCommand(runCmd, selftestCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("marketedge: fatal error")
	}
}

// runAggregator loads configuration, constructs the orchestrator, and
// blocks until SIGINT/SIGTERM or a fatal startup condition. Exit codes
// follow spec.md §6: 0 on a clean shutdown signal, non-zero for
// configuration, discovery, or initial-connection failures.
func runAggregator(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("marketedge: configuration invalid")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(cfg, log.Logger)
	if err := orch.Run(ctx); err != nil {
		log.Error().Err(err).Msg("marketedge: aborting")
		os.Exit(1)
	}
	return nil
}

// runSelfTest exercises the two invariants spec.md §8 calls out as
// fatal-programmer-error territory — F8 round-trip and symbol lookup
// determinism — against a small fixed fixture, so a CI job or an
// operator can sanity-check a build without touching the network.
func runSelfTest() error {
	var buf [32]byte
	cases := []string{"0", "-1.00000001", "60000.00000001", "9223372036.85477580"}
	for _, in := range cases {
		v, ok := fixedpoint.Parse([]byte(in))
		if !ok {
			return fmt.Errorf("selftest: parse failed for %q", in)
		}
		n := fixedpoint.Format(buf[:], v)
		rt, ok := fixedpoint.Parse(buf[:n])
		if !ok || rt != v {
			return fmt.Errorf("selftest: round-trip mismatch for %q", in)
		}
	}

	reg := symbol.New(512)
	names := []string{"BTCUSDT-PERP", "ETHUSDT-PERP"}
	if err := reg.RegisterAll(names); err != nil {
		return fmt.Errorf("selftest: register_all: %w", err)
	}
	for i, name := range names {
		if got := reg.FromBytes([]byte(name)); got != symbol.Symbol(i) {
			return fmt.Errorf("selftest: FromBytes(%q) = %d, want %d", name, got, i)
		}
	}
	if got := reg.FromBytes([]byte("NOSUCHSYMBOL")); got != symbol.Unknown {
		return fmt.Errorf("selftest: FromBytes(unregistered) = %d, want Unknown", got)
	}

	fmt.Println("selftest: ok")
	return nil
}
