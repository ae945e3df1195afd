package fee

import (
	"github.com/blancagut/PaySafer-sub000/internal/destination"
	"github.com/shopspring/decimal"
)

// Rule is a percentage fee with a floor. Flat rules ignore the amount.
type Rule struct {
	Rate    decimal.Decimal
	Minimum decimal.Decimal
	Flat    bool
}

type Schedule map[destination.MethodType]Rule

func DefaultSchedule() Schedule {
	return Schedule{
		destination.BankTransfer:              {Rate: decimal.RequireFromString("0.001"), Minimum: decimal.RequireFromString("0.50")},
		destination.BankTransferInternational: {Rate: decimal.RequireFromString("0.003"), Minimum: decimal.RequireFromString("2.00")},
		destination.PayPal:                    {Rate: decimal.RequireFromString("0.005"), Minimum: decimal.RequireFromString("1.00")},
		destination.CardExpress:               {Rate: decimal.RequireFromString("0.015"), Minimum: decimal.RequireFromString("1.50")},
		destination.CardStandard:              {Rate: decimal.RequireFromString("0.005"), Minimum: decimal.RequireFromString("0.75")},
		destination.WesternUnion:              {Rate: decimal.RequireFromString("0.018"), Minimum: decimal.RequireFromString("3.00")},
		destination.MoneyGram:                 {Rate: decimal.RequireFromString("0.015"), Minimum: decimal.RequireFromString("2.50")},
		destination.Crypto:                    {Minimum: decimal.RequireFromString("2.00"), Flat: true},
	}
}

type Engine struct {
	schedule Schedule
	fallback Rule
}

// NewEngine uses DefaultSchedule when schedule is nil. Unknown method types
// are charged the bank_transfer rule.
func NewEngine(schedule Schedule) *Engine {
	if schedule == nil {
		schedule = DefaultSchedule()
	}
	fallback, ok := schedule[destination.BankTransfer]
	if !ok {
		fallback = DefaultSchedule()[destination.BankTransfer]
	}
	return &Engine{schedule: schedule, fallback: fallback}
}

func (e *Engine) Compute(amount decimal.Decimal, method destination.MethodType) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	rule, ok := e.schedule[method]
	if !ok {
		rule = e.fallback
	}
	if rule.Flat {
		return rule.Minimum.Round(2)
	}
	return decimal.Max(rule.Minimum, amount.Mul(rule.Rate)).Round(2)
}

// Quote returns the fee and what the destination receives.
func (e *Engine) Quote(amount decimal.Decimal, method destination.MethodType) (fee, net decimal.Decimal) {
	fee = e.Compute(amount, method)
	return fee, amount.Sub(fee)
}
