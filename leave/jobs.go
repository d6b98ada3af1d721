/*
jobs.go - Monthly accrual and yearly reset

PURPOSE:
  Two batch jobs keep every active user's accounts current:

    monthly accrual  - credits each user 1/12 of the yearly casual quota
    yearly reset     - casual to zero, sick and WFH to quota, earned
                       carries over at half, then runs January's accrual

  Each job runs at most once per period regardless of how many callers
  fire it. The lock is a conditional insert of the period's job_runs key;
  the insert shares one transaction with the whole batch, so a mid-batch
  failure rolls everything back, releases nothing, and leaves the period
  runnable again.

JOB KEYS:
  monthly_accrual_<year>_<zero-padded month>   e.g. monthly_accrual_2025_06
  yearly_reset_<year>                          e.g. yearly_reset_2025

SEE ALSO:
  - ledger.go: Accrue and Reset, the only mutations jobs perform
  - policy.go: quota resolution per year
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/google/uuid"
)

// JobRunner executes the periodic balance jobs.
type JobRunner struct {
	store    Store
	ledger   *Ledger
	dir      Directory
	policies PolicyProvider
	log      *zap.Logger
}

func NewJobRunner(store Store, ledger *Ledger, dir Directory, policies PolicyProvider, log *zap.Logger) *JobRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobRunner{store: store, ledger: ledger, dir: dir, policies: policies, log: log}
}

// MonthlyAccrualKey identifies one month's accrual run.
func MonthlyAccrualKey(year int, month time.Month) string {
	return fmt.Sprintf("monthly_accrual_%04d_%02d", year, int(month))
}

// YearlyResetKey identifies one year's reset run.
func YearlyResetKey(year int) string {
	return fmt.Sprintf("yearly_reset_%04d", year)
}

// RunMonthlyAccrual credits every active user's casual account with the
// monthly rate for now's month. A second run in the same month returns
// ErrAlreadyLocked with no balance effect.
func (r *JobRunner) RunMonthlyAccrual(ctx context.Context, now time.Time, triggeredBy string) error {
	year, month := now.UTC().Year(), now.UTC().Month()
	key := MonthlyAccrualKey(year, month)

	quotas, err := r.policies.QuotasFor(ctx, year)
	if err != nil {
		return err
	}
	rate := quotas.MonthlyCasualRate()

	users, err := r.dir.ActiveUsers(ctx)
	if err != nil {
		return err
	}

	reason := fmt.Sprintf("monthly accrual %04d-%02d", year, int(month))
	err = r.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertJobRun(JobRun{
			JobKey:      key,
			ExecutedAt:  time.Now().UTC(),
			TriggeredBy: triggeredBy,
			Summary:     fmt.Sprintf("accrued %s casual for %d users", rate, len(users)),
		}); err != nil {
			return err
		}
		for _, u := range users {
			if err := r.ledger.Accrue(tx, u.ID, TypeCasual, rate, reason, ""); err != nil {
				return err
			}
		}
		return tx.AppendAudit(AuditEntry{
			ID:        uuid.NewString(),
			ActorID:   triggeredBy,
			Action:    AuditJobCompleted,
			Entity:    "JOB",
			EntityID:  key,
			NewValues: map[string]any{"rate": rate, "users": len(users)},
			Summary:   reason,
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}

	r.log.Info("monthly accrual completed",
		zap.String("job_key", key),
		zap.String("rate", rate.String()),
		zap.Int("users", len(users)),
		zap.String("triggered_by", triggeredBy))
	return nil
}

// RunYearlyReset rolls every active user's accounts into the new year:
// casual to zero, sick and WFH to their quotas, earned halved (rounded
// to two places). On success it fires the new year's first monthly
// accrual; that accrual having already run on its own is not an error.
func (r *JobRunner) RunYearlyReset(ctx context.Context, now time.Time, triggeredBy string) error {
	year := now.UTC().Year()
	key := YearlyResetKey(year)

	quotas, err := r.policies.QuotasFor(ctx, year)
	if err != nil {
		return err
	}

	users, err := r.dir.ActiveUsers(ctx)
	if err != nil {
		return err
	}

	reason := fmt.Sprintf("yearly reset %04d", year)
	err = r.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertJobRun(JobRun{
			JobKey:      key,
			ExecutedAt:  time.Now().UTC(),
			TriggeredBy: triggeredBy,
			Summary:     fmt.Sprintf("reset accounts for %d users", len(users)),
		}); err != nil {
			return err
		}
		for _, u := range users {
			if err := r.resetUser(tx, u.ID, quotas, reason); err != nil {
				return err
			}
		}
		return tx.AppendAudit(AuditEntry{
			ID:        uuid.NewString(),
			ActorID:   triggeredBy,
			Action:    AuditJobCompleted,
			Entity:    "JOB",
			EntityID:  key,
			NewValues: map[string]any{"users": len(users)},
			Summary:   reason,
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}

	r.log.Info("yearly reset completed",
		zap.String("job_key", key),
		zap.Int("users", len(users)),
		zap.String("triggered_by", triggeredBy))

	// January's accrual follows the reset so nobody starts the year at
	// zero casual days.
	if err := r.RunMonthlyAccrual(ctx, now, triggeredBy); err != nil && !errors.Is(err, ErrAlreadyLocked) {
		return err
	}
	return nil
}

func (r *JobRunner) resetUser(tx Tx, userID string, quotas Quotas, reason string) error {
	if err := r.ledger.Reset(tx, userID, TypeCasual, decimal.Zero, reason); err != nil {
		return err
	}
	if err := r.ledger.Reset(tx, userID, TypeSick, quotas.SickYearly, reason); err != nil {
		return err
	}
	if err := r.ledger.Reset(tx, userID, TypeWFH, quotas.WFHYearly, reason); err != nil {
		return err
	}
	earned, err := tx.Account(userID, TypeEarned)
	if err != nil {
		return err
	}
	carry := earned.Balance.Div(decimal.NewFromInt(2)).Round(2)
	return r.ledger.Reset(tx, userID, TypeEarned, carry, reason)
}

// Status reports whether the current period's jobs have already run.
func (r *JobRunner) Status(ctx context.Context, now time.Time) (JobStatus, error) {
	year, month := now.UTC().Year(), now.UTC().Month()

	accrual, err := r.store.JobRun(ctx, MonthlyAccrualKey(year, month))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return JobStatus{}, err
	}
	reset, err := r.store.JobRun(ctx, YearlyResetKey(year))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return JobStatus{}, err
	}
	return JobStatus{
		MonthlyAccrualRanThisMonth: accrual != nil,
		YearlyResetRanThisYear:     reset != nil,
	}, nil
}
