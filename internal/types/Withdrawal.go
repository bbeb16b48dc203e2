/*

This file contains the types describing the staking venue's two-phase withdrawal protocol.

*/

package types

import (
	"fmt"
	"strings"

	"cosmossdk.io/math"
)

// WithdrawalRequest is the single withdrawal slot a venue keeps per actor.
type WithdrawalRequest struct {
	Amount          math.Int `json:"amount"`            // Principal units requested, zero when no request is open
	EligibleAtCycle uint64   `json:"eligible_at_cycle"` // First cycle index at which Amount can be finalized
	CycleDuration   uint64   `json:"cycle_duration"`    // Venue cycle length hint at request time
}

// IsOpen reports whether a non-zero request exists.
func (r WithdrawalRequest) IsOpen() bool {
	return !r.Amount.IsNil() && r.Amount.IsPositive()
}

// EligibleAt reports whether the request can be finalized at the given cycle.
func (r WithdrawalRequest) EligibleAt(currentCycle uint64) bool {
	return r.IsOpen() && currentCycle >= r.EligibleAtCycle
}

// ClockPolicy decides what happens to the eligibility cycle when a request that is still inside its
// timelock is replaced by a larger one.
type ClockPolicy string

const (
	// ClockAnchored keeps the eligibility cycle of the pending request.
	ClockAnchored ClockPolicy = "anchored"
	// ClockReset restarts the timelock at currentCycle + 1.
	ClockReset ClockPolicy = "reset"
)

// ParseClockPolicy parses a configured policy name; empty means ClockAnchored.
func ParseClockPolicy(s string) (ClockPolicy, error) {
	switch ClockPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClockAnchored:
		return ClockAnchored, nil
	case ClockReset:
		return ClockReset, nil
	default:
		return "", fmt.Errorf("unknown clock policy %q (want %q or %q)", s, ClockAnchored, ClockReset)
	}
}
