package domain

import "time"

// retryBackoffUnit spaces the n-th retry at 5*n^2 minutes after the failure
// (5m, 20m, 45m, ...). Quadratic growth widens spacing quickly without a cap;
// max retries already bounds total attempts.
const retryBackoffUnit = 5 * time.Minute

// RetryPlan is the outcome of applying the retry rule to one failure.
type RetryPlan struct {
	RetryCount  int
	NextRetryAt *time.Time
	Terminal    bool
}

// PlanRetry computes the entry's next attempt eligibility after a failure.
// retryCount is the count before this failure; the returned plan carries the
// incremented count and, when budget remains, the backoff deadline.
func PlanRetry(retryCount, maxRetries int, now time.Time) RetryPlan {
	n := retryCount + 1
	if n >= maxRetries {
		return RetryPlan{RetryCount: n, Terminal: true}
	}

	next := now.Add(RetryBackoff(n))
	return RetryPlan{RetryCount: n, NextRetryAt: &next}
}

// RetryBackoff returns the delay before the attempt following the n-th failure.
func RetryBackoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(n*n) * retryBackoffUnit
}
