package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/hedge-engine/internal/app"
	"github.com/atmx/hedge-engine/internal/calculator"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/report"
	"github.com/atmx/hedge-engine/internal/ticks"
)

func newCalcCommand() *cobra.Command {
	var in calculator.Input
	var mode, source string
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Size a hedge without touching the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Mode = model.Mode(mode)
			in.Source = model.StakeSource(source)
			res, err := calculator.Compute(in)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "Lay stake:\t%s\n", res.HedgeStake)
			fmt.Fprintf(tw, "Exposure:\t%s\n", res.Exposure)
			fmt.Fprintf(tw, "Profit if A:\t%s\n", res.ProfitIfA)
			fmt.Fprintf(tw, "Profit if B:\t%s\n", res.ProfitIfB)
			fmt.Fprintf(tw, "Qualifying loss:\t%s\n", optional(res.QualifyingLoss))
			fmt.Fprintf(tw, "Credit benefit:\t%s\n", optional(res.CreditBenefit))
			fmt.Fprintf(tw, "Credit yield:\t%s\n", optional(res.CreditYield))
			fmt.Fprintf(tw, "Rating:\t%s%%\n", res.Rating)
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.Var(newDecimalFlag(&in.Stake), "stake", "Primary stake")
	f.Var(newDecimalFlag(&in.OddsA), "odds-a", "Back odds")
	f.Var(newDecimalFlag(&in.OddsB), "odds-b", "Lay odds")
	f.Var(newDecimalFlag(&in.CommissionPct), "commission", "Exchange commission in percent")
	f.StringVar(&mode, "mode", string(model.ModeQualification), "calificacion or credito_no_retorno")
	f.StringVar(&source, "source", string(model.SourceCash), "efectivo or credito")
	for _, name := range []string{"stake", "odds-a", "odds-b"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newSnapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snap ODDS",
		Short: "Round odds up to the next valid exchange tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			odds, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("%q is not a decimal number", args[0])
			}
			snapped, err := ticks.ValidateAndSnap(odds)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), snapped.String())
			return nil
		},
	}
}

func newIncentiveCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incentive",
		Short: "Track bookmaker bonuses and promotions",
	}
	cmd.AddCommand(newIncentiveCreateCommand(s), newIncentiveListCommand(s), newIncentiveGrantCommand(s))
	return cmd
}

func newIncentiveCreateCommand(s *session) *cobra.Command {
	var in model.Incentive
	var reqStake, minOdds decimal.Decimal
	var expires string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a new incentive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.ReqStake = nullDecimal(cmd, "req-stake", reqStake)
			in.MinOdds = nullDecimal(cmd, "min-odds", minOdds)
			if expires != "" {
				t, err := time.Parse(time.DateOnly, expires)
				if err != nil {
					return fmt.Errorf("expires must be YYYY-MM-DD: %w", err)
				}
				in.ExpiryDate = &t
			}
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				created, err := a.Incentives.Create(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "incentive %s %q %s\n", created.ID, created.Title, created.Status)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.AccountID, "account", "", "Account the incentive belongs to")
	f.StringVar(&in.Title, "title", "", "Short description")
	f.StringVar(&in.Type, "type", "", "Kind of promotion")
	f.Var(newDecimalFlag(&reqStake), "req-stake", "Stake required to unlock it")
	f.Var(newDecimalFlag(&minOdds), "min-odds", "Minimum qualifying odds")
	f.StringVar(&expires, "expires", "", "Expiry date (YYYY-MM-DD)")
	f.StringVar(&in.Notes, "notes", "", "Free-form notes")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newIncentiveListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List incentives by expiry date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				list, err := a.Incentives.List(ctx)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tTITLE\tACCOUNT\tMIN ODDS\tREQ STAKE\tEXPIRES\tSTATUS")
				for _, in := range list {
					expiry := "-"
					if in.ExpiryDate != nil {
						expiry = in.ExpiryDate.Format(time.DateOnly)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", in.ID, in.Title, in.AccountID,
						optional(in.MinOdds), optional(in.ReqStake), expiry, in.Status)
				}
				return tw.Flush()
			})
		},
	}
}

func newIncentiveGrantCommand(s *session) *cobra.Command {
	var amount decimal.Decimal
	var note string
	cmd := &cobra.Command{
		Use:   "grant INCENTIVE_ID",
		Short: "Credit a released bonus to the incentive's account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				tx, err := a.Incentives.Grant(ctx, args[0], amount, note)
				if err != nil {
					return err
				}
				acc, err := a.Ledger.Account(ctx, tx.AccountID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "granted %s, balance %s\n",
					formatMoney(tx.Amount, acc.Currency), formatMoney(tx.BalanceAfter, acc.Currency))
				return nil
			})
		},
	}
	cmd.Flags().Var(newDecimalFlag(&amount), "amount", "Bonus amount")
	cmd.Flags().StringVar(&note, "note", "", "Note stored with the row")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newReportCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Profit and balance reports",
	}

	kpis := &cobra.Command{
		Use:   "kpis",
		Short: "Show headline figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				k, err := a.Reports.KPIs(ctx)
				if err != nil {
					return err
				}
				cur := s.currency()
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintf(tw, "Profit:\t%s\n", formatMoney(k.TotalProfit, cur))
				fmt.Fprintf(tw, "ROI:\t%s\n", k.ROI)
				fmt.Fprintf(tw, "Operations:\t%d (%d pending)\n", k.Operations, k.PendingOperations)
				fmt.Fprintf(tw, "Balance:\t%s\n", formatMoney(k.TotalBalance, cur))
				fmt.Fprintf(tw, "Locked:\t%s\n", formatMoney(k.LockedFunds, cur))
				return tw.Flush()
			})
		},
	}

	var period string
	profit := &cobra.Command{
		Use:   "profit",
		Short: "Settlement profit per day, ISO week or month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.run(cmd, func(ctx context.Context, a *app.App) error {
				points, err := a.Reports.ProfitOverTime(ctx, period)
				if err != nil {
					return err
				}
				cur := s.currency()
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "PERIOD\tPROFIT")
				for _, p := range points {
					fmt.Fprintf(tw, "%s\t%s\n", p.Period, formatMoney(p.Profit, cur))
				}
				return tw.Flush()
			})
		},
	}
	profit.Flags().StringVar(&period, "period", report.PeriodDay, "day, week or month")

	cmd.AddCommand(kpis, profit)
	return cmd
}
