package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/hedge-engine/internal/app"
	"github.com/atmx/hedge-engine/internal/ledger"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/store"
)

func newAccountCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create and inspect bookmaker and exchange accounts",
	}
	cmd.AddCommand(newAccountCreateCommand(s), newAccountListCommand(s), newAccountShowCommand(s))
	return cmd
}

func newAccountCreateCommand(s *session) *cobra.Command {
	var spec ledger.AccountSpec
	var role string
	var commission decimal.Decimal
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec.Role = model.AccountRole(role)
			spec.Commission = nullDecimal(cmd, "commission", commission)
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				acc, err := a.Ledger.CreateAccount(ctx, spec)
				if err != nil {
					return err
				}
				printAccount(cmd.OutOrStdout(), acc)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&spec.Name, "name", "", "Account name")
	f.StringVar(&spec.Owner, "owner", "", "Account holder")
	f.StringVar(&role, "type", string(model.RoleOrigin), "Account type: origen or contraposicion")
	f.StringVar(&spec.Currency, "currency", "", "ISO currency code (config default if empty)")
	f.Var(newDecimalFlag(&commission), "commission", "Exchange commission in percent")
	f.StringVar(&spec.Notes, "notes", "", "Free-form notes")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newAccountListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all accounts with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				accounts, err := a.Ledger.Accounts(ctx)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tNAME\tTYPE\tBALANCE\tBONUS")
				for _, acc := range accounts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", acc.ID, acc.Name, acc.Role,
						formatMoney(acc.Balance, acc.Currency), formatMoney(acc.BonusBalance, acc.Currency))
				}
				return tw.Flush()
			})
		},
	}
}

func newAccountShowCommand(s *session) *cobra.Command {
	var need decimal.Decimal
	cmd := &cobra.Command{
		Use:   "show ACCOUNT_ID",
		Short: "Show an account, optionally with the top-up needed to cover an amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				acc, err := a.Ledger.Account(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printAccount(out, acc)
				if cmd.Flags().Changed("need") {
					fmt.Fprintf(out, "Top-up:     %s\n", formatMoney(ledger.TopUp(acc.Balance, need), acc.Currency))
				}
				return nil
			})
		},
	}
	cmd.Flags().Var(newDecimalFlag(&need), "need", "Amount the account must cover")
	return cmd
}

func newTxCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Post and list ledger transactions",
	}
	cmd.AddCommand(newTxAddCommand(s), newTxListCommand(s))
	return cmd
}

func newTxAddCommand(s *session) *cobra.Command {
	var kind, note string
	var amount decimal.Decimal
	cmd := &cobra.Command{
		Use:   "add ACCOUNT_ID",
		Short: "Post a deposit, withdrawal, incentive or adjustment",
		Long: `Post a manual ledger row. The amount is signed: positive credits the
account, negative debits it. Operation and transfer rows are posted by
their own commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := model.TxKind(kind)
			if !k.Manual() {
				return fmt.Errorf("kind must be deposit, withdrawal, incentive or adjustment, got %q", kind)
			}
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				tx, err := a.Ledger.AppendTransaction(ctx, model.Posting{
					AccountID: args[0],
					Kind:      k,
					Amount:    amount,
					Note:      note,
				})
				if err != nil {
					return err
				}
				acc, err := a.Ledger.Account(ctx, tx.AccountID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s, balance %s\n", tx.Kind,
					formatMoney(tx.Amount, acc.Currency), formatMoney(tx.BalanceAfter, acc.Currency))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", string(model.KindDeposit), "deposit, withdrawal, incentive or adjustment")
	f.Var(newDecimalFlag(&amount), "amount", "Signed amount")
	f.StringVar(&note, "note", "", "Note stored with the row")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newTxListCommand(s *session) *cobra.Command {
	var kind, operationID string
	cmd := &cobra.Command{
		Use:   "list ACCOUNT_ID",
		Short: "List an account's ledger in posting order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				acc, err := a.Ledger.Account(ctx, args[0])
				if err != nil {
					return err
				}
				txs, err := a.Ledger.Transactions(ctx, store.TransactionFilter{
					AccountID:   acc.ID,
					OperationID: operationID,
					Kind:        model.TxKind(kind),
				})
				if err != nil {
					return err
				}
				printTransactions(cmd.OutOrStdout(), txs, acc.Currency)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only rows of this kind")
	cmd.Flags().StringVar(&operationID, "operation", "", "Only rows of this operation")
	return cmd
}

func newTransferCommand(s *session) *cobra.Command {
	var spec ledger.TransferSpec
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move funds between two accounts of the same currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				txs, err := a.Ledger.Transfer(ctx, spec)
				if err != nil {
					return err
				}
				acc, err := a.Ledger.Account(ctx, spec.From)
				if err != nil {
					return err
				}
				printTransactions(cmd.OutOrStdout(), txs, acc.Currency)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&spec.From, "from", "", "Source account")
	f.StringVar(&spec.To, "to", "", "Destination account")
	f.Var(newDecimalFlag(&spec.Amount), "amount", "Amount to move")
	f.StringVar(&spec.Note, "note", "", "Note stored on both rows")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newReconcileCommand(s *session) *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check stored balances against the ledger",
		Long:  `Recompute every balance from its transactions. Exits non-zero when any account disagrees.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				if accountID != "" {
					ok, err := a.Ledger.Reconcile(ctx, accountID)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("%w: account %s", model.ErrReconciliationMismatch, accountID)
					}
				} else if err := a.Ledger.ReconcileAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ledger OK")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "Check a single account")
	return cmd
}
