package queue

import (
	"errors"
	"fmt"
)

// ErrEmpty signals that ClaimNext found no claimable task. This is normal
// operation, not a fault: a caller that saw a non-zero Size may still get
// ErrEmpty when another worker wins the claim race. Callers idle and retry.
var ErrEmpty = errors.New("queue: no task available")

// ErrUnavailable wraps any transport-level failure talking to the backing
// store. It is always propagated to the caller, never swallowed; retrying
// is the caller's decision.
var ErrUnavailable = errors.New("queue: store unavailable")

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
