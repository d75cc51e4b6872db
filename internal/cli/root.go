// Package cli implements hedgectl, the command-line front end of the hedge
// engine. Each command opens the configured store, runs one operation and
// prints the result.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/hedge-engine/internal/app"
	"github.com/atmx/hedge-engine/internal/config"
)

// session carries what every command shares: the config flag and, once
// opened, the wired engine.
type session struct {
	configPath string
	cfg        *config.Config
}

// NewRootCommand builds the hedgectl command tree.
func NewRootCommand() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:   "hedgectl",
		Short: "Manage hedge accounts, operations and reports",
		Long: `hedgectl drives the hedge engine from the shell. It reads the same
TOML config and HEDGE_* environment variables as the server, so both can
share one SQLite or PostgreSQL store.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&s.configPath, "config", os.Getenv("HEDGE_CONFIG"), "Path to the TOML config file")

	root.AddCommand(
		newCalcCommand(),
		newSnapCommand(),
		newAccountCommand(s),
		newTxCommand(s),
		newTransferCommand(s),
		newOperationCommand(s),
		newIncentiveCommand(s),
		newReconcileCommand(s),
		newReportCommand(s),
	)
	return root
}

// Execute runs hedgectl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// run opens the engine, hands it to fn and closes it again.
func (s *session) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// currency is the default currency used for totals that span accounts.
func (s *session) currency() string {
	if s.cfg == nil {
		return config.Defaults().Ledger.DefaultCurrency
	}
	return s.cfg.Ledger.DefaultCurrency
}

// decimalFlag lets cobra parse decimal amounts without going through
// float64.
type decimalFlag struct {
	v *decimal.Decimal
}

func newDecimalFlag(v *decimal.Decimal) *decimalFlag { return &decimalFlag{v: v} }

func (f *decimalFlag) String() string {
	if f.v == nil {
		return "0"
	}
	return f.v.String()
}

func (f *decimalFlag) Set(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%q is not a decimal number", s)
	}
	*f.v = d
	return nil
}

func (f *decimalFlag) Type() string { return "decimal" }

// nullDecimal returns v as a NullDecimal that is valid only when the flag
// was given.
func nullDecimal(cmd *cobra.Command, name string, v decimal.Decimal) decimal.NullDecimal {
	if !cmd.Flags().Changed(name) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}
