package quota

import "context"

// DailyQuota enforces the daily dispatch ceiling across all runs and processes.
type DailyQuota interface {
	// Reserve claims up to n sends from today's budget and returns how many
	// were granted. Zero means the ceiling is reached for the day.
	Reserve(ctx context.Context, n int) (int, error)

	// Release returns unused reservations to today's budget.
	Release(ctx context.Context, n int) error

	// Remaining reports today's unreserved budget.
	Remaining(ctx context.Context) (int, error)
}
