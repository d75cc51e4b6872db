package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/model"
)

// formatMoney renders amount in its currency's display format. Codes that
// go-money does not know fall back to "12.50 XYZ".
func formatMoney(amount decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func optional(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func printAccount(w io.Writer, a *model.Account) {
	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%s\n", a.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", a.Name)
	if a.Owner != "" {
		fmt.Fprintf(tw, "Owner:\t%s\n", a.Owner)
	}
	fmt.Fprintf(tw, "Type:\t%s\n", a.Role)
	fmt.Fprintf(tw, "Commission:\t%s%%\n", a.Commission)
	fmt.Fprintf(tw, "Balance:\t%s\n", formatMoney(a.Balance, a.Currency))
	fmt.Fprintf(tw, "Bonus:\t%s\n", formatMoney(a.BonusBalance, a.Currency))
	tw.Flush()
}

func printTransactions(w io.Writer, txs []model.Transaction, currency string) {
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tKIND\tAMOUNT\tBALANCE\tOPERATION\tNOTE")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.Timestamp.Format(time.DateTime), tx.Kind,
			formatMoney(tx.Amount, currency), formatMoney(tx.BalanceAfter, currency),
			tx.RefOperationID, tx.Note)
	}
	tw.Flush()
}

func printOperation(w io.Writer, op *model.Operation) {
	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%s\n", op.ID)
	fmt.Fprintf(tw, "Event:\t%s\n", op.Event)
	fmt.Fprintf(tw, "Status:\t%s\n", op.Status)
	fmt.Fprintf(tw, "Mode:\t%s (%s)\n", op.Mode, op.StakeSource)
	fmt.Fprintf(tw, "Origin:\t%s  stake %s @ %s\n", op.OriginAccountID, op.Stake, op.OddsA)
	fmt.Fprintf(tw, "Hedge:\t%s  lay %s @ %s, exposure %s, commission %s%%\n",
		op.HedgeAccountID, op.HedgeStake, op.OddsB, op.Exposure, op.Commission)
	fmt.Fprintf(tw, "Profit if A:\t%s\n", op.ProfitIfA)
	fmt.Fprintf(tw, "Profit if B:\t%s\n", op.ProfitIfB)
	fmt.Fprintf(tw, "Rating:\t%s%%\n", op.Rating)
	if op.SettledAt != nil {
		fmt.Fprintf(tw, "Settled:\t%s %s\n", op.SettledAt.Format(time.DateTime), op.SettlementNote)
	}
	tw.Flush()
}

func printOperations(w io.Writer, ops []model.Operation) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTIME\tEVENT\tSTATUS\tSTAKE\tODDS A\tLAY\tODDS B\tEXPOSURE")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			op.ID, op.Timestamp.Format(time.DateTime), op.Event, op.Status,
			op.Stake, op.OddsA, op.HedgeStake, op.OddsB, op.Exposure)
	}
	tw.Flush()
}
