package main

import (
	"golang.org/x/exp/constraints"
)

// linspace returns n evenly spaced values from start to end, both included.
// If n == 1 it returns only start, and for n <= 0 it returns nil.
func linspace[T constraints.Float](start, end T, n int) []T {
	if n <= 0 {
		return nil
	}
	values := make([]T, n)
	if n == 1 {
		values[0] = start
		return values
	}
	step := (end - start) / T(n-1)
	for ii := range values {
		values[ii] = start + T(ii)*step
	}
	// Avoid rounding errors in the last value.
	values[n-1] = end
	return values
}

// sampleIndices returns up to numRows indices into a slice of length n, evenly spread and always including
// the first and last elements.
func sampleIndices(n, numRows int) []int {
	if n <= 0 || numRows <= 0 {
		return nil
	}
	if numRows >= n {
		indices := make([]int, n)
		for ii := range indices {
			indices[ii] = ii
		}
		return indices
	}
	if numRows == 1 {
		return []int{0}
	}
	indices := make([]int, 0, numRows)
	for _, position := range linspace(0, float64(n-1), numRows) {
		idx := int(position + 0.5)
		if len(indices) > 0 && indices[len(indices)-1] == idx {
			continue
		}
		indices = append(indices, idx)
	}
	return indices
}
