// Package credit decides whether a customer may take on more debt.
package credit

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/domain"
)

// ZeroLimitPolicy controls what a credit limit of zero means.
type ZeroLimitPolicy string

const (
	ZeroLimitUnlimited ZeroLimitPolicy = "unlimited"
	ZeroLimitDeny      ZeroLimitPolicy = "deny"
)

var approvalRatio = decimal.RequireFromString("0.8")

func ParsePolicy(raw string) (ZeroLimitPolicy, error) {
	switch ZeroLimitPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ZeroLimitUnlimited:
		return ZeroLimitUnlimited, nil
	case ZeroLimitDeny:
		return ZeroLimitDeny, nil
	}
	return "", fmt.Errorf("unknown zero credit limit policy %q", raw)
}

type Validator struct {
	zeroLimit ZeroLimitPolicy
}

func NewValidator(policy ZeroLimitPolicy) Validator {
	if policy == "" {
		policy = ZeroLimitUnlimited
	}
	return Validator{zeroLimit: policy}
}

func (v Validator) Policy() ZeroLimitPolicy {
	return v.zeroLimit
}

func (v Validator) unlimited(c domain.Customer) bool {
	return c.CreditLimit.IsZero() && v.zeroLimit == ZeroLimitUnlimited
}

// Check rejects requested when it would push the customer's outstanding
// balance past the credit limit. addBack is the remaining amount of a debt
// being replaced, already included in the outstanding balance.
func (v Validator) Check(c domain.Customer, requested decimal.Decimal, addBack decimal.Decimal) error {
	if v.unlimited(c) || !requested.IsPositive() {
		return nil
	}

	outstanding := c.OutstandingBalance.Sub(addBack)
	if outstanding.Add(requested).LessThanOrEqual(c.CreditLimit) {
		return nil
	}

	available := c.CreditLimit.Sub(outstanding)
	return &domain.ValidationError{
		Field: "credit_limit",
		Message: fmt.Sprintf(
			"credit limit exceeded: requested %s, available %s (limit %s, outstanding %s)",
			requested.StringFixed(2),
			available.StringFixed(2),
			c.CreditLimit.StringFixed(2),
			outstanding.StringFixed(2),
		),
	}
}

// Evaluate is the advisory form of Check; it never fails.
func (v Validator) Evaluate(c domain.Customer, requested decimal.Decimal) domain.CreditCheck {
	available := c.CreditLimit.Sub(c.OutstandingBalance)
	check := domain.CreditCheck{
		CustomerID:         c.ID,
		CustomerName:       c.Name,
		CreditLimit:        domain.NewMoney(c.CreditLimit),
		OutstandingBalance: domain.NewMoney(c.OutstandingBalance),
		AvailableCredit:    domain.NewMoney(available),
		RequestedAmount:    domain.NewMoney(requested),
	}

	if v.unlimited(c) {
		check.CanTakeCredit = true
		check.UnlimitedCredit = true
		return check
	}

	check.CanTakeCredit = requested.LessThanOrEqual(available)
	check.ApprovalRequired = requested.GreaterThan(available.Mul(approvalRatio))
	if !check.CanTakeCredit {
		shortfall := domain.NewMoney(requested.Sub(available))
		check.Shortfall = &shortfall
		check.Reason = fmt.Sprintf(
			"requested amount %s exceeds available credit %s",
			requested.StringFixed(2),
			available.StringFixed(2),
		)
	}
	return check
}
