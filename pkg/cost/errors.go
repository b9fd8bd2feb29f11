package cost

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded is returned when admitting a request would push daily
// usage past the budget.
var ErrBudgetExceeded = errors.New("daily budget exceeded")

// BudgetExceededError carries the ledger state at the time of rejection.
type BudgetExceededError struct {
	Usage  float64
	Budget float64
	Cost   float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily budget exceeded: usage $%.4f + request $%.4f > budget $%.2f",
		e.Usage, e.Cost, e.Budget)
}

// Is makes errors.Is(err, ErrBudgetExceeded) match.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
