/*
policy.go - Yearly quota policy

PURPOSE:
  Quotas drive the monthly accrual rate and the yearly reset targets.
  They vary by calendar year; a PolicyProvider resolves the quotas in
  effect for a given year, falling back to the most recent earlier year
  and finally to compiled-in defaults so the jobs never stall on a
  missing policy row.
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// PolicyProvider resolves the quota set in effect for a year.
type PolicyProvider interface {
	QuotasFor(ctx context.Context, year int) (Quotas, error)
}

// DefaultQuotas is the compiled-in fallback used when no policy row
// exists for the year or any earlier year.
func DefaultQuotas() Quotas {
	return Quotas{
		CasualYearly: decimal.NewFromInt(12),
		SickYearly:   decimal.NewFromInt(5),
		WFHYearly:    decimal.NewFromInt(2),
	}
}

// StaticPolicies serves fixed per-year quotas with the standard fallback
// chain. Zero value falls back to DefaultQuotas for every year.
type StaticPolicies struct {
	ByYear map[int]Quotas
}

func (p StaticPolicies) QuotasFor(_ context.Context, year int) (Quotas, error) {
	if q, ok := p.ByYear[year]; ok {
		return q, nil
	}
	// Most recent earlier year wins before the defaults do.
	best, found := 0, false
	for y := range p.ByYear {
		if y < year && (!found || y > best) {
			best, found = y, true
		}
	}
	if found {
		return p.ByYear[best], nil
	}
	return DefaultQuotas(), nil
}
