package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/atmx/hedge-engine/internal/app"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/operation"
	"github.com/atmx/hedge-engine/internal/store"
)

func newOperationCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "op",
		Aliases: []string{"operation"},
		Short:   "Create, amend and settle hedged operations",
	}
	cmd.AddCommand(
		newOpCreateCommand(s),
		newOpUpdateCommand(s),
		newOpSettleCommand(s),
		newOpCancelCommand(s),
		newOpListCommand(s),
		newOpShowCommand(s),
	)
	return cmd
}

// requestFlags binds the operation request fields shared by create and
// update.
type requestFlags struct {
	req        operation.Request
	mode       string
	source     string
	commission decimal.Decimal
}

func (rf *requestFlags) bind(f *pflag.FlagSet, defMode, defSource string) {
	f.StringVar(&rf.req.OriginAccountID, "origin", "", "Origin (back) account")
	f.StringVar(&rf.req.HedgeAccountID, "hedge", "", "Hedge (lay) account")
	f.StringVar(&rf.req.Event, "event", "", "Event description")
	f.StringVar(&rf.mode, "mode", defMode, "calificacion or credito_no_retorno")
	f.StringVar(&rf.source, "source", defSource, "efectivo or credito")
	f.Var(newDecimalFlag(&rf.req.Stake), "stake", "Primary stake")
	f.Var(newDecimalFlag(&rf.req.OddsA), "odds-a", "Back odds")
	f.Var(newDecimalFlag(&rf.req.OddsB), "odds-b", "Lay odds")
	f.Var(newDecimalFlag(&rf.commission), "commission", "Exchange commission in percent (hedge account's if unset)")
	f.StringVar(&rf.req.Notes, "notes", "", "Free-form notes")
}

func (rf *requestFlags) request(cmd *cobra.Command) operation.Request {
	req := rf.req
	req.Mode = model.Mode(rf.mode)
	req.StakeSource = model.StakeSource(rf.source)
	req.Commission = nullDecimal(cmd, "commission", rf.commission)
	return req
}

func newOpCreateCommand(s *session) *cobra.Command {
	rf := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Size a hedge and lock the funds on both accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				op, err := a.Operations.Create(ctx, rf.request(cmd))
				if err != nil {
					return err
				}
				printOperation(cmd.OutOrStdout(), op)
				return nil
			})
		},
	}
	rf.bind(cmd.Flags(), string(model.ModeQualification), string(model.SourceCash))
	for _, name := range []string{"origin", "hedge", "event", "stake", "odds-a", "odds-b"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newOpUpdateCommand(s *session) *cobra.Command {
	rf := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "update OPERATION_ID",
		Short: "Amend a pending operation; omitted flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				op, err := a.Operations.Update(ctx, args[0], rf.request(cmd))
				if err != nil {
					return err
				}
				printOperation(cmd.OutOrStdout(), op)
				return nil
			})
		},
	}
	rf.bind(cmd.Flags(), "", "")
	return cmd
}

func newOpSettleCommand(s *session) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "settle OPERATION_ID OUTCOME",
		Short: "Settle a pending operation as GANA_A, GANA_B or ANULADA",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				op, err := a.Operations.Settle(ctx, args[0], args[1], note)
				if err != nil {
					return err
				}
				printOperation(cmd.OutOrStdout(), op)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Settlement note")
	return cmd
}

func newOpCancelCommand(s *session) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "cancel OPERATION_ID",
		Short: "Cancel a pending operation and release its funds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				op, err := a.Operations.Cancel(ctx, args[0], note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "operation %s %s\n", op.ID, op.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Cancellation note")
	return cmd
}

func newOpListCommand(s *session) *cobra.Command {
	var status, accountID string
	var hideCancelled bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := store.OperationFilter{AccountID: accountID, IncludeCancelled: !hideCancelled}
			if status != "" {
				st, err := model.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				ops, err := a.Operations.List(ctx, f)
				if err != nil {
					return err
				}
				printOperations(cmd.OutOrStdout(), ops)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only operations in this status")
	cmd.Flags().StringVar(&accountID, "account", "", "Only operations touching this account")
	cmd.Flags().BoolVar(&hideCancelled, "hide-cancelled", false, "Leave out cancelled operations")
	return cmd
}

func newOpShowCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show OPERATION_ID",
		Short: "Show one operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				op, err := a.Operations.Get(ctx, args[0])
				if err != nil {
					return err
				}
				printOperation(cmd.OutOrStdout(), op)
				return nil
			})
		},
	}
}
