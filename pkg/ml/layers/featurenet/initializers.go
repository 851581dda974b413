// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package featurenet

import (
	"math"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// randomValueInitializer initializes the value of a pure parameter network: a rank-1 variable sampled uniformly
// from `[-limit, limit]`, with `limit = sqrt(6 / (2*size))`, using the context random number generator.
//
// initializers.GlorotUniformFn zero-initializes shapes of rank <= 1, since it takes them to be biases.
func randomValueInitializer(ctx *context.Context) context.VariableInitializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		if !shape.DType.IsFloat() {
			return Zeros(g, shape)
		}
		limit := math.Sqrt(6.0 / float64(max(2*shape.Size(), 1)))
		values := ctx.RandomUniform(g, shape)
		values = MulScalar(values, 2*limit)
		return AddScalar(values, -limit)
	}
}
