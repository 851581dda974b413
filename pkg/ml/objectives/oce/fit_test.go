// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package oce

import (
	"math"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// normalQuantiles returns n deterministic samples of a standard normal distribution.
func normalQuantiles(n int) []float32 {
	values := make([]float32, n)
	for ii := range values {
		p := (float64(ii) + 0.5) / float64(n)
		values[ii] = float32(math.Sqrt2 * math.Erfinv(2*p-1))
	}
	return values
}

// optimalIntercept solves mean(d(x+y)) = 1 for y with bisection, which is the first order condition of
// maximizing mean(u(x+y) - y).
func optimalIntercept(utility Utility, lambda float64, samples []float32) float64 {
	meanD := func(y float64) float64 {
		var sum float64
		for _, x := range samples {
			_, d := referenceUtility(utility, lambda, float64(x)+y, 0)
			sum += d
		}
		return sum / float64(len(samples))
	}
	// d is non-increasing, so meanD(y) - 1 is non-increasing in y.
	low, high := -10.0, 10.0
	for range 100 {
		mid := (low + high) / 2
		if meanD(mid) > 1 {
			low = mid
		} else {
			high = mid
		}
	}
	return (low + high) / 2
}

func TestFit(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping training test in short mode.")
	}
	backend := graphtest.BuildTestBackend()
	const numSamples = 256
	samples := normalQuantiles(numSamples)

	for _, utility := range []Utility{UtilityExp2, UtilityVicky, UtilityQuad} {
		t.Run(utility.String(), func(t *testing.T) {
			ctx := context.New()
			ctx.SetParams(map[string]any{
				ParamUtility:                 utility.String(),
				ParamLambda:                  1.0,
				optimizers.ParamLearningRate: 0.05,
			})
			objective, err := New(ctx)
			require.NoError(t, err)

			ds, err := datasets.InMemoryFromData(backend, "normal", []any{samples}, []any{make([]float32, numSamples)})
			require.NoError(t, err)
			ds.Infinite(true).BatchSize(numSamples, false)

			modelFn := func(ctx *context.Context, spec any, inputs []*Node) []*Node {
				return []*Node{objective.Call(Data{Payoff: inputs[0]})}
			}
			lossFn := func(labels, predictions []*Node) *Node {
				return Neg(ReduceAllMean(predictions[0]))
			}
			trainer := train.NewTrainer(backend, ctx, modelFn, lossFn, optimizers.Adam().Done(), nil, nil)
			objective.AttachToTrainer(trainer)
			loop := train.NewLoop(trainer)
			_, err = loop.RunSteps(ds, 600)
			require.NoError(t, err)

			vars := objective.YNetwork().Variables()
			require.Len(t, vars, 1)
			y := float64(tensors.MustCopyFlatData[float32](vars[0].MustValue())[0])
			want := optimalIntercept(utility, 1.0, samples)
			t.Logf("%s: fitted y=%.4f, optimal y=%.4f", utility, y, want)
			assert.InDelta(t, want, y, 0.1)

			// At the optimum the mean derivative is 1.
			evaluator, err := NewEvaluator(backend, ctx, objective)
			require.NoError(t, err)
			_, d, err := evaluator.Eval(tensors.FromValue(samples), nil)
			require.NoError(t, err)
			var meanD float64
			for _, v := range tensors.MustCopyFlatData[float32](d) {
				meanD += float64(v)
			}
			meanD /= numSamples
			assert.InDelta(t, 1.0, meanD, 0.1)
		})
	}
}
