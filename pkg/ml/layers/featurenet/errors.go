// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package featurenet

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/shapes"
)

// UnknownFeatureError is returned (or panicked, during graph building) when a requested feature is not
// among the available ones. It's usually a wiring mistake of the caller.
type UnknownFeatureError struct {
	// Feature is the first requested feature that was not found.
	Feature string

	// Available features, sorted.
	Available []string

	// Requested features, sorted.
	Requested []string
}

func newUnknownFeatureError(feature string, available map[string]shapes.Shape, requested []string) *UnknownFeatureError {
	return &UnknownFeatureError{
		Feature:   feature,
		Available: slices.Sorted(maps.Keys(available)),
		Requested: slices.Clone(requested),
	}
}

// Error implements the error interface.
func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("featurenet: unknown feature %q, known features are %q, requested features are %q",
		e.Feature, e.Available, e.Requested)
}
