package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	DefaultGrowthRate        = decimal.RequireFromString("1.05")
	DefaultCeilingMultiplier = decimal.RequireFromString("2.07")
)

// AccrualPolicy describes the bounded compound growth applied on every accrual cycle.
type AccrualPolicy struct {
	GrowthRate        decimal.Decimal
	CeilingMultiplier decimal.Decimal
}

// DefaultAccrualPolicy grows balances by 5% per cycle up to 2.07x the initial balance.
func DefaultAccrualPolicy() AccrualPolicy {
	return AccrualPolicy{
		GrowthRate:        DefaultGrowthRate,
		CeilingMultiplier: DefaultCeilingMultiplier,
	}
}

// Ceiling is the highest balance accrual may produce for the account.
func (p AccrualPolicy) Ceiling(acct *Account) decimal.Decimal {
	return acct.InitialBalance.Mul(p.CeilingMultiplier)
}

// Apply returns the balance after one accrual step and whether it changed.
// A balance already at or above the ceiling is left as is; accrual never lowers a balance.
func (p AccrualPolicy) Apply(acct *Account) (decimal.Decimal, bool) {
	ceiling := p.Ceiling(acct)
	if acct.Balance.GreaterThanOrEqual(ceiling) {
		return acct.Balance, false
	}
	candidate := decimal.Min(acct.Balance.Mul(p.GrowthRate), ceiling)
	if candidate.LessThanOrEqual(acct.Balance) {
		return acct.Balance, false
	}
	return candidate, true
}

// AccountBalance is a point-in-time view of one account's balance.
type AccountBalance struct {
	AccountID      int64           `json:"account_id"`
	Balance        decimal.Decimal `json:"balance"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// BalanceSnapshot is the set of balances observed by one accrual cycle.
type BalanceSnapshot struct {
	TakenAt  time.Time        `json:"taken_at"`
	Accounts []AccountBalance `json:"accounts"`
}
