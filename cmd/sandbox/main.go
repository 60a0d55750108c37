package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/config"
	"github.com/ohikava/token-sandbox/internal/app"
	"github.com/ohikava/token-sandbox/internal/logging"
	"github.com/ohikava/token-sandbox/internal/setup"
)

var (
	cfgFile   string
	overrides config.Overrides
	setupOut  string
)

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	Padding(0, 2)

var rootCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Local constant-product AMM sandbox",
	Long: `sandbox simulates a single token/ETH constant-product pool in memory and
serves it over HTTP, so trading tools can be exercised without a chain.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sandbox HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create a config file interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setup.RunTUI(setupOut)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")

	f := serveCmd.Flags()
	f.StringVar(&overrides.Addr, "addr", "", "listen address (default :5001)")
	f.StringVar(&overrides.LogLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&overrides.NoColor, "no-color", false, "disable colored log levels")
	f.StringVar(&overrides.StateFile, "state-file", "", "load state from and save it to this file")
	f.StringVar(&overrides.TokenSupply, "token-supply", "", "initial token reserve")
	f.StringVar(&overrides.EthLiquidity, "eth-liquidity", "", "initial ETH reserve")
	f.StringVar(&overrides.Seed, "seed", "", "seed for the distribution sampler")

	setupCmd.Flags().StringVarP(&setupOut, "out", "o", setup.DefaultFile, "where to write the config")

	rootCmd.AddCommand(serveCmd, setupCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Apply(overrides); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogColor)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fmt.Println(bannerStyle.Render(fmt.Sprintf("token sandbox  %s tokens / %s ETH  on %s",
		cfg.TokenSupply, cfg.EthLiquidity, cfg.Addr)))

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start sandbox", zap.Error(err))
		return err
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("sandbox stopped with error", zap.Error(err))
		return err
	}
	logger.Info("sandbox stopped")
	return nil
}
