/*
deductible.go - Chargeable-day calculation for a leave span

PURPOSE:
  Pure calculation of how many days a leave request charges against a
  balance. No storage, no clock, no date-in-the-past policy: callers that
  care about backdating enforce it at the application boundary.

RULES:
  MATERNITY:   always exactly 180 calendar days from the start date,
               inclusive. Weekends and holidays count.
  SABBATICAL:  open-ended; the end date must be nil and nothing is charged
               to a numeric balance (0 days). The span still exists for
               presence/scheduling views.
  ALL OTHERS:  working days in [start, end] excluding the weekend
               definition and the supplied holiday set. A span that
               resolves to zero working days is an error, not a free leave.

SEE ALSO:
  - date.go: Weekend and HolidaySet
  - request.go: the only production caller
*/
package leave

import (
	"github.com/shopspring/decimal"
)

// MaternityDays is the fixed maternity span in calendar days.
const MaternityDays = 180

// DeductibleDays computes the chargeable day count for a leave span.
// end may be nil only for SABBATICAL. For MATERNITY the end date is
// ignored; the span is always MaternityDays from start.
func DeductibleDays(typ LeaveType, start Date, end *Date, holidays HolidaySet, weekend Weekend) (decimal.Decimal, error) {
	switch typ {
	case TypeMaternity:
		// Every calendar day counts; the caller pins the end date to
		// start+179 so the stored request matches what is charged.
		return decimal.NewFromInt(MaternityDays), nil

	case TypeSabbatical:
		if end != nil {
			return decimal.Zero, &InvalidRangeError{Detail: "sabbatical must be open-ended (no end date)"}
		}
		return decimal.Zero, nil
	}

	if end == nil {
		return decimal.Zero, &InvalidRangeError{Detail: "end date is required for " + string(typ)}
	}
	if start.After(*end) {
		return decimal.Zero, &InvalidRangeError{Detail: "start date is after end date"}
	}

	count := 0
	for d := start; d.BeforeOrEqual(*end); d = d.AddDays(1) {
		if weekend.Contains(d) || holidays[d] {
			continue
		}
		count++
	}

	if count == 0 {
		return decimal.Zero, &InvalidRangeError{Detail: "span contains no working days"}
	}
	return decimal.NewFromInt(int64(count)), nil
}

// MaternityEnd returns the fixed end date for a maternity leave starting
// at start: 180 calendar days inclusive.
func MaternityEnd(start Date) Date {
	return start.AddDays(MaternityDays - 1)
}
