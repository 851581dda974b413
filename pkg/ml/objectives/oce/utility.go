// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package oce

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Utility family used by the OCE objective. Each one is a concave, monotone utility u with a risk aversion
// parameter lambda.
type Utility int

const (
	// UtilityMean is the plain expectation, u(x) = x. It's the lambda -> 0 limit of all other families.
	UtilityMean Utility = iota

	// UtilityExp is the entropic utility, u(x) = (1 - exp(-lambda x)) / lambda.
	UtilityExp

	// UtilityExp2 is exponential for positive gains and quadratic for negative gains.
	UtilityExp2

	// UtilityVicky is the utility of Henderson and Rodgers, u(x) = (1 + lambda x - sqrt(1 + (lambda x)^2)) / lambda.
	UtilityVicky

	// UtilityCVaR is the conditional value at risk: u(x) = (1+lambda) min(0, x).
	// For a percentile p, use lambda = p / (1-p): e.g. lambda=1 for 50%, lambda=19 for 95%.
	UtilityCVaR

	// UtilityQuad is a quadratic penalty up to x0 = 1/lambda, flat afterwards.
	UtilityQuad
)

var utilityNames = [...]string{
	UtilityMean:  "mean",
	UtilityExp:   "exp",
	UtilityExp2:  "exp2",
	UtilityVicky: "vicky",
	UtilityCVaR:  "cvar",
	UtilityQuad:  "quad",
}

// utilityAliases are accepted by ParseUtility, but never returned by Utility.String.
var utilityAliases = map[string]Utility{
	"expectation": UtilityMean,
	"entropy":     UtilityExp,
}

// String implements fmt.Stringer.
func (u Utility) String() string {
	if !u.IsAUtility() {
		return "Utility(" + strconv.Itoa(int(u)) + ")"
	}
	return utilityNames[u]
}

// IsAUtility returns whether u is one of the defined values.
func (u Utility) IsAUtility() bool {
	return u >= 0 && int(u) < len(utilityNames)
}

// UtilityValues returns all the defined utilities.
func UtilityValues() []Utility {
	values := make([]Utility, len(utilityNames))
	for ii := range values {
		values[ii] = Utility(ii)
	}
	return values
}

// UtilityStrings returns the names of all utilities, not including aliases.
func UtilityStrings() []string {
	return slices.Clone(utilityNames[:])
}

// ParseUtility converts a name (case-insensitive) to a Utility. Besides the names returned by
// UtilityStrings, it also accepts "expectation" (for mean) and "entropy" (for exp).
func ParseUtility(name string) (Utility, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for ii, utilityName := range utilityNames {
		if utilityName == lower {
			return Utility(ii), nil
		}
	}
	if u, found := utilityAliases[lower]; found {
		return u, nil
	}
	return UtilityMean, errors.Errorf("unknown utility %q, valid values are %q (or aliases \"expectation\", \"entropy\")",
		name, utilityNames)
}

// MarshalText implements encoding.TextMarshaler.
func (u Utility) MarshalText() ([]byte, error) {
	if !u.IsAUtility() {
		return nil, errors.Errorf("invalid utility value %d", int(u))
	}
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Utility) UnmarshalText(text []byte) error {
	var err error
	*u, err = ParseUtility(string(text))
	return err
}
