package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// WORKING DAY CALCULATION
// =============================================================================

func datePtr(d leave.Date) *leave.Date { return &d }

func TestDeductibleDays_WorkingWeek(t *testing.T) {
	// GIVEN: A Monday-to-Friday span with no holidays
	// WHEN: Computing deductible days for casual leave
	// THEN: All five days are charged

	start := leave.NewDate(2025, time.June, 2) // Monday
	end := leave.NewDate(2025, time.June, 6)   // Friday

	days, err := leave.DeductibleDays(leave.TypeCasual, start, datePtr(end), nil, leave.DefaultWeekend())
	require.NoError(t, err)
	assert.Equal(t, "5", days.String())
}

func TestDeductibleDays_WeekendsExcluded(t *testing.T) {
	// GIVEN: A nine-day span covering one full weekend
	// WHEN: Computing deductible days
	// THEN: Saturday and Sunday are free

	start := leave.NewDate(2025, time.June, 2)  // Monday
	end := leave.NewDate(2025, time.June, 10)   // Tuesday next week

	days, err := leave.DeductibleDays(leave.TypeSick, start, datePtr(end), nil, leave.DefaultWeekend())
	require.NoError(t, err)
	assert.Equal(t, "7", days.String())
}

func TestDeductibleDays_HolidayExcluded(t *testing.T) {
	// GIVEN: A Monday-to-Friday span with a holiday on Wednesday
	// WHEN: Computing deductible days
	// THEN: Only four days are charged

	start := leave.NewDate(2025, time.June, 2)
	end := leave.NewDate(2025, time.June, 6)
	holidays := leave.NewHolidaySet([]leave.Holiday{
		{ID: "h1", Date: leave.NewDate(2025, time.June, 4), Name: "Founders Day", Year: 2025},
	})

	days, err := leave.DeductibleDays(leave.TypeCasual, start, datePtr(end), holidays, leave.DefaultWeekend())
	require.NoError(t, err)
	assert.Equal(t, "4", days.String())
}

func TestDeductibleDays_OptionalHolidayStillCharged(t *testing.T) {
	// GIVEN: An optional holiday inside the span
	// WHEN: Building the holiday set and computing days
	// THEN: Optional holidays do not reduce the charge

	holidays := leave.NewHolidaySet([]leave.Holiday{
		{ID: "h1", Date: leave.NewDate(2025, time.June, 4), Name: "Optional Fest", Year: 2025, Optional: true},
	})

	start := leave.NewDate(2025, time.June, 2)
	end := leave.NewDate(2025, time.June, 6)
	days, err := leave.DeductibleDays(leave.TypeCasual, start, datePtr(end), holidays, leave.DefaultWeekend())
	require.NoError(t, err)
	assert.Equal(t, "5", days.String())
}

func TestDeductibleDays_SingleDay(t *testing.T) {
	start := leave.NewDate(2025, time.June, 4) // Wednesday
	days, err := leave.DeductibleDays(leave.TypeWFH, start, datePtr(start), nil, leave.DefaultWeekend())
	require.NoError(t, err)
	assert.Equal(t, "1", days.String())
}

// =============================================================================
// EDGE CASES
// =============================================================================

func TestDeductibleDays_AllNonWorkingDays_Rejected(t *testing.T) {
	// GIVEN: A Saturday-to-Sunday span
	// WHEN: Computing deductible days
	// THEN: The span is rejected as chargeless

	start := leave.NewDate(2025, time.June, 7) // Saturday
	end := leave.NewDate(2025, time.June, 8)   // Sunday

	_, err := leave.DeductibleDays(leave.TypeCasual, start, datePtr(end), nil, leave.DefaultWeekend())
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestDeductibleDays_StartAfterEnd_Rejected(t *testing.T) {
	start := leave.NewDate(2025, time.June, 10)
	end := leave.NewDate(2025, time.June, 2)

	_, err := leave.DeductibleDays(leave.TypeCasual, start, datePtr(end), nil, leave.DefaultWeekend())
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestDeductibleDays_MissingEnd_Rejected(t *testing.T) {
	start := leave.NewDate(2025, time.June, 2)

	_, err := leave.DeductibleDays(leave.TypeCasual, start, nil, nil, leave.DefaultWeekend())
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

// =============================================================================
// MATERNITY AND SABBATICAL
// =============================================================================

func TestDeductibleDays_Maternity_Fixed180CalendarDays(t *testing.T) {
	// GIVEN: A maternity leave starting mid-year
	// WHEN: Computing deductible days
	// THEN: Exactly 180 days regardless of weekends and holidays

	start := leave.NewDate(2025, time.March, 1)
	holidays := leave.NewHolidaySet([]leave.Holiday{
		{ID: "h1", Date: leave.NewDate(2025, time.March, 14), Name: "Holiday", Year: 2025},
	})

	days, err := leave.DeductibleDays(leave.TypeMaternity, start, nil, holidays, leave.DefaultWeekend())
	require.NoError(t, err)
	assert.Equal(t, "180", days.String())
}

func TestMaternityEnd_Spans180Days(t *testing.T) {
	start := leave.NewDate(2025, time.January, 1)
	end := leave.MaternityEnd(start)

	// Start and end dates are both inclusive.
	assert.Equal(t, "2025-06-29", end.String())
}

func TestDeductibleDays_Sabbatical_OpenEndedAndFree(t *testing.T) {
	// GIVEN: An open-ended sabbatical
	// WHEN: Computing deductible days
	// THEN: Nothing is charged

	start := leave.NewDate(2025, time.June, 2)
	days, err := leave.DeductibleDays(leave.TypeSabbatical, start, nil, nil, leave.DefaultWeekend())
	require.NoError(t, err)
	assert.True(t, days.IsZero())
}

func TestDeductibleDays_Sabbatical_EndDateRejected(t *testing.T) {
	start := leave.NewDate(2025, time.June, 2)
	end := leave.NewDate(2025, time.August, 1)

	_, err := leave.DeductibleDays(leave.TypeSabbatical, start, datePtr(end), nil, leave.DefaultWeekend())
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}
