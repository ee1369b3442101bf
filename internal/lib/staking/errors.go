package staking

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNoDelegations       = errors.New("delegation snapshot is empty")
	ErrNoBoostData         = errors.New("no boost weight data available")
	ErrNoAllowedValidators = errors.New("no allowed validators present in delegation snapshot")

	// ErrConservation indicates a planner bug, not bad input - the emitted
	// total failed to match the requested amount.
	ErrConservation = errors.New("withdrawal plan total does not match requested amount")
)

// UnsatisfiableError is returned when a withdrawal request exceeds what all
// three tiers combined can supply.  No partial plan is ever returned.
type UnsatisfiableError struct {
	Requested *big.Int
	Missing   *big.Int
}

func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("withdrawal of %s unsatisfiable: %s still missing after draining all candidates", e.Requested, e.Missing)
}
