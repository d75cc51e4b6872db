package operation

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/precision"
)

const (
	noteStakeLocked    = "stake locked"
	noteExposureLocked = "exposure locked"
	noteStakeReleased  = "stake released"
	noteExposureFreed  = "exposure released"
	noteOriginWon      = "origin won"
	noteOriginLost     = "origin lost"
	noteHedgePaid      = "hedge paid"
	noteHedgeWon       = "hedge won"
	noteVoid           = "void"
	noteCancelled      = "operation cancelled"
	noteAmended        = "operation amended"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// lockPostings debits the origin by the stake (cash-funded only) and the
// hedge by the exposure.
func lockPostings(op *model.Operation) []model.Posting {
	var out []model.Posting
	if op.CashFunded() {
		out = append(out, posting(op, op.OriginAccountID, model.KindOpLock, op.Stake.Neg(), noteStakeLocked))
	}
	return append(out, posting(op, op.HedgeAccountID, model.KindOpLock, op.Exposure.Neg(), noteExposureLocked))
}

// releasePostings gives back exactly what lockPostings took.
func releasePostings(op *model.Operation, note string) []model.Posting {
	var out []model.Posting
	if op.CashFunded() {
		out = append(out, posting(op, op.OriginAccountID, model.KindOpRelease, op.Stake, note))
	}
	return append(out, posting(op, op.HedgeAccountID, model.KindOpRelease, op.Exposure, note))
}

// settlementPostings books outcome to against the frozen sizing of op.
//
//	GANA_A:  origin +stake·(oddsA−1), hedge −exposure
//	GANA_B:  origin −stake (cash only), hedge +hedgeStake·(1−c)
//	ANULADA: locks released, nothing booked
func settlementPostings(op *model.Operation, to model.Status) []model.Posting {
	switch to {
	case model.StatusOriginWon:
		var out []model.Posting
		if op.CashFunded() {
			out = append(out, posting(op, op.OriginAccountID, model.KindOpRelease, op.Stake, noteStakeReleased))
		}
		winnings := precision.Money(op.Stake.Mul(op.OddsA.Sub(one)))
		return append(out,
			posting(op, op.OriginAccountID, model.KindOpSettlement, winnings, noteOriginWon),
			posting(op, op.HedgeAccountID, model.KindOpRelease, op.Exposure, noteExposureFreed),
			posting(op, op.HedgeAccountID, model.KindOpSettlement, op.Exposure.Neg(), noteHedgePaid),
		)

	case model.StatusHedgeWon:
		var out []model.Posting
		if op.CashFunded() {
			out = append(out,
				posting(op, op.OriginAccountID, model.KindOpRelease, op.Stake, noteStakeReleased),
				posting(op, op.OriginAccountID, model.KindOpSettlement, op.Stake.Neg(), noteOriginLost),
			)
		} else {
			// Nothing was locked; the zero row keeps both branches auditable alike.
			out = append(out, posting(op, op.OriginAccountID, model.KindOpRelease, decimal.Zero, noteStakeReleased))
		}
		c := precision.Div(op.Commission, hundred)
		winnings := precision.Money(op.HedgeStake.Mul(one.Sub(c)))
		return append(out,
			posting(op, op.HedgeAccountID, model.KindOpRelease, op.Exposure, noteExposureFreed),
			posting(op, op.HedgeAccountID, model.KindOpSettlement, winnings, noteHedgeWon),
		)

	case model.StatusVoid:
		return releasePostings(op, noteVoid)
	}
	return nil
}

func posting(op *model.Operation, account string, kind model.TxKind, amount decimal.Decimal, note string) model.Posting {
	return model.Posting{
		AccountID:      account,
		Kind:           kind,
		Amount:         amount,
		Note:           note,
		RefOperationID: op.ID,
	}
}
