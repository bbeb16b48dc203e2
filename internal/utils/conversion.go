/*
This file contains common utility functions for converting between base units and human units,
particularly for SDK math operations and precision handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// MaxUint256 is the infinite-approval allowance.
var MaxUint256 = sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result := sdkmath.LegacyNewDecFromInt(amount).Quo(pow10(precision))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// ParseUnits converts a decimal string such as "10.5" into base units with the given precision.
// Digits beyond the precision are truncated.
func ParseUnits(amount string, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	decAmount, err := sdkmath.LegacyNewDecFromStr(amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}
	if decAmount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	return decAmount.Mul(pow10(precision)).TruncateInt(), nil
}

// Units returns n whole tokens expressed in base units.
func Units(n int64, precision int) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(pow10(precision).TruncateInt())
}

// WithinRelativeTolerance reports whether |got - want| <= tolerance * |want|.
// A zero want only matches a zero got.
func WithinRelativeTolerance(got, want sdkmath.Int, tolerance sdkmath.LegacyDec) bool {
	if got.IsNil() || want.IsNil() {
		return false
	}
	diff := got.Sub(want).Abs()
	if want.IsZero() {
		return diff.IsZero()
	}
	return sdkmath.LegacyNewDecFromInt(diff).LTE(tolerance.MulInt(want.Abs()))
}

func pow10(precision int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}
	return factor
}
