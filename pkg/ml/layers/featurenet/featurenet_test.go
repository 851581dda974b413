// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package featurenet

import (
	"math"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestConfig(t *testing.T) {
	t.Run("FeaturesSortedAndDeduplicated", func(t *testing.T) {
		net, err := New(context.New(), []string{"vol", "spot", "vol", "delta"}, 1).Done()
		require.NoError(t, err)
		assert.Equal(t, []string{"delta", "spot", "vol"}, net.Features())
		assert.False(t, net.IsParameter())
		assert.False(t, net.IsBuilt())
	})

	t.Run("Defaults", func(t *testing.T) {
		net, err := New(context.New(), nil, 3).Done()
		require.NoError(t, err)
		assert.Equal(t, 20, net.width)
		assert.Equal(t, 3, net.depth)
		assert.Equal(t, 3, net.OutputWidth())
		assert.True(t, net.IsParameter())
	})

	t.Run("FromContext", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParams(map[string]any{ParamWidth: 7, ParamDepth: 1, ParamActivation: "tanh"})
		net, err := New(ctx.In("y"), []string{"spot"}, 1).Done()
		require.NoError(t, err)
		assert.Equal(t, 7, net.width)
		assert.Equal(t, 1, net.depth)
	})

	invalidConfigs := map[string]*Config{
		"OutputWidth":     New(context.New(), nil, 0),
		"Width":           New(context.New(), nil, 1).Width(0),
		"Depth":           New(context.New(), nil, 1).Depth(-1),
		"InitialValue":    New(context.New(), nil, 3).InitialValue(1, 2),
		"ZeroModel":       New(context.New(), nil, 1).ZeroModel(true),
		"Activation":      New(context.New(), nil, 1).Activation("bogus"),
		"FinalActivation": New(context.New(), nil, 1).FinalActivation("bogus"),
	}
	for name, config := range invalidConfigs {
		t.Run("Invalid"+name, func(t *testing.T) {
			net, err := config.Done()
			require.Error(t, err)
			require.Nil(t, net)
			t.Logf("expected error: %v", err)
		})
	}

	t.Run("ZeroModelFromContext", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParam(ParamZeroModel, true)
		_, err := New(ctx, []string{"spot"}, 1).Done()
		require.ErrorContains(t, err, "not implemented")
	})
}

func TestBuild(t *testing.T) {
	t.Run("UnknownFeature", func(t *testing.T) {
		ctx := context.New()
		net, err := New(ctx, []string{"spot", "vol"}, 1).Done()
		require.NoError(t, err)
		err = net.Build(map[string]shapes.Shape{
			"spot":  shapes.Make(dtypes.Float64, 8, 1),
			"delta": shapes.Make(dtypes.Float64, 8, 1),
		})
		var unknownErr *UnknownFeatureError
		require.True(t, errors.As(err, &unknownErr), "expected *UnknownFeatureError, got %v", err)
		assert.Equal(t, "vol", unknownErr.Feature)
		assert.Equal(t, []string{"delta", "spot"}, unknownErr.Available)
		assert.Equal(t, []string{"spot", "vol"}, unknownErr.Requested)
		assert.False(t, net.IsBuilt())
		assert.Equal(t, 0, ctx.NumVariables())
	})

	t.Run("Twice", func(t *testing.T) {
		net, err := New(context.New(), []string{"spot"}, 1).Done()
		require.NoError(t, err)
		featureShapes := map[string]shapes.Shape{"spot": shapes.Make(dtypes.Float32, 4, 1)}
		require.NoError(t, net.Build(featureShapes))
		require.Panics(t, func() { _ = net.Build(featureShapes) })
		require.NoError(t, net.BuildFromNodes(nil), "BuildFromNodes should be a no-op on a built network")
	})

	t.Run("InvalidRank", func(t *testing.T) {
		net, err := New(context.New(), []string{"spot"}, 1).Done()
		require.NoError(t, err)
		require.Error(t, net.Build(map[string]shapes.Shape{"spot": shapes.Make(dtypes.Float32, 4)}))
	})

	t.Run("MixedDTypes", func(t *testing.T) {
		net, err := New(context.New(), []string{"spot", "vol"}, 1).Done()
		require.NoError(t, err)
		require.Error(t, net.Build(map[string]shapes.Shape{
			"spot": shapes.Make(dtypes.Float32, 4, 1),
			"vol":  shapes.Make(dtypes.Float64, 4, 1),
		}))
	})

	t.Run("Layers", func(t *testing.T) {
		ctx := context.New()
		net, err := New(ctx.In("y"), []string{"vol", "spot"}, 1).Width(4).Depth(2).Done()
		require.NoError(t, err)
		require.NoError(t, net.Build(map[string]shapes.Shape{
			"spot":  shapes.Make(dtypes.Float64, 16, 1),
			"vol":   shapes.Make(dtypes.Float64, 16, 2),
			"extra": shapes.Make(dtypes.Float64, 16, 5),
		}))
		assert.True(t, net.IsBuilt())
		assert.Equal(t, 3, net.FeatureWidth())
		want := map[string][]int{
			"/y/featurenet_hidden_layer_0": {3, 4},
			"/y/featurenet_hidden_layer_1": {4, 4},
			"/y/featurenet_output_layer":   {4, 1},
		}
		for scope, dims := range want {
			weights := ctx.GetVariableByScopeAndName(scope, "weights")
			require.NotNilf(t, weights, "missing weights in scope %q", scope)
			assert.Equal(t, dims, weights.Shape().Dimensions)
			assert.Equal(t, dtypes.Float64, weights.Shape().DType)
			biases := ctx.GetVariableByScopeAndName(scope, "biases")
			require.NotNilf(t, biases, "missing biases in scope %q", scope)
			assert.Equal(t, dims[1:], biases.Shape().Dimensions)
		}
		assert.Equal(t, 3*4+4+4*4+4+4*1+1, net.NumParameters())
		assert.Len(t, net.Variables(), 6)
	})
}

func TestCall(t *testing.T) {
	backend := graphtest.BuildTestBackend()

	t.Run("BeforeBuild", func(t *testing.T) {
		ctx := context.New()
		net, err := New(ctx, nil, 1).Done()
		require.NoError(t, err)
		require.Panics(t, func() {
			_ = context.MustExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
				return net.Call(g, nil)
			})
		})
	})

	t.Run("InitialValue", func(t *testing.T) {
		ctx := context.New()
		net, err := New(ctx, nil, 2).InitialValue(0.5, -1).DType(dtypes.Float64).Done()
		require.NoError(t, err)
		require.NoError(t, net.Build(nil))
		output := context.MustExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
			return net.Call(g, map[string]*Node{"ignored": Const(g, [][]float64{{1}})})
		})
		assert.Equal(t, [][]float64{{0.5, -1}}, output.Value())
		assert.True(t, net.Variables()[0].Trainable)
	})

	t.Run("BroadcastInitialValue", func(t *testing.T) {
		ctx := context.New()
		net, err := New(ctx, nil, 3).InitialValue(0).Trainable(false).Done()
		require.NoError(t, err)
		require.NoError(t, net.Build(nil))
		output := context.MustExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
			return net.Call(g, nil)
		})
		assert.Equal(t, [][]float32{{0, 0, 0}}, output.Value())
		assert.False(t, net.Variables()[0].Trainable)
	})

	t.Run("RandomParameter", func(t *testing.T) {
		ctx := context.New()
		require.NoError(t, ctx.SetRNGStateFromSeed(42))
		net, err := New(ctx, nil, 4).DType(dtypes.Float64).Done()
		require.NoError(t, err)
		require.NoError(t, net.Build(nil))
		output := context.MustExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
			return net.Call(g, nil)
		})
		limit := math.Sqrt(6.0 / 8.0)
		var numNonZero int
		for _, v := range tensors.MustCopyFlatData[float64](output) {
			assert.LessOrEqual(t, math.Abs(v), limit)
			if v != 0 {
				numNonZero++
			}
		}
		assert.Greater(t, numNonZero, 0)
	})

	t.Run("KnownWeights", func(t *testing.T) {
		ctx := context.New()
		net, err := New(ctx, []string{"a"}, 1).Width(2).Depth(1).Activation("relu").Done()
		require.NoError(t, err)
		require.NoError(t, net.Build(map[string]shapes.Shape{"a": shapes.Make(dtypes.Float64, 2, 2)}))
		vars := net.Variables()
		require.Len(t, vars, 4)
		require.NoError(t, vars[0].SetValue(tensors.FromValue([][]float64{{1, 0}, {0, -1}})))
		require.NoError(t, vars[1].SetValue(tensors.FromValue([]float64{0, 0})))
		require.NoError(t, vars[2].SetValue(tensors.FromValue([][]float64{{1}, {1}})))
		require.NoError(t, vars[3].SetValue(tensors.FromValue([]float64{0.5})))

		exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, a *Node) *Node {
			return net.Call(a.Graph(), map[string]*Node{"a": a})
		})
		// Hidden layer: [1, -2] -> relu -> [1, 0]; [3, 4] -> [3, 4].
		output := exec.MustExec1([][]float64{{1, 2}, {3, -4}})
		assert.Equal(t, [][]float64{{1.5}, {7.5}}, output.Value())
	})

	t.Run("FinalActivation", func(t *testing.T) {
		ctx := context.New()
		require.NoError(t, ctx.SetRNGStateFromSeed(7))
		net, err := New(ctx, []string{"a"}, 3).FinalActivation("relu").Done()
		require.NoError(t, err)
		exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, a *Node) *Node {
			features := map[string]*Node{"a": a}
			if err := net.BuildFromNodes(features); err != nil {
				panic(err)
			}
			return net.Call(a.Graph(), features)
		})
		output := exec.MustExec1([][]float32{{-3}, {-1}, {0}, {1}, {3}})
		assert.Equal(t, []int{5, 3}, output.Shape().Dimensions)
		for _, v := range tensors.MustCopyFlatData[float32](output) {
			assert.GreaterOrEqual(t, v, float32(0))
		}
	})

	t.Run("ZeroWidthFeatures", func(t *testing.T) {
		ctx := context.New()
		net, err := New(ctx, []string{"empty"}, 2).InitialValue(1, 2).DType(dtypes.Float64).Done()
		require.NoError(t, err)
		assert.False(t, net.IsParameter())
		require.NoError(t, net.Build(map[string]shapes.Shape{"empty": shapes.Make(dtypes.Float64, 3, 0)}))
		output := context.MustExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
			return net.Call(g, nil)
		})
		assert.True(t, net.IsParameter())
		assert.Equal(t, 0, net.FeatureWidth())
		assert.Equal(t, [][]float64{{1, 2}}, output.Value())
		require.Len(t, net.Variables(), 1)
	})

	t.Run("InitialWeightsAndBiases", func(t *testing.T) {
		ctx := context.New()
		require.NoError(t, ctx.SetRNGStateFromSeed(3))
		net, err := New(ctx, []string{"a"}, 2).Width(8).Depth(1).Done()
		require.NoError(t, err)
		require.NoError(t, net.Build(map[string]shapes.Shape{"a": shapes.Make(dtypes.Float32, 4, 3)}))
		_ = context.MustExecOnce(backend, ctx, func(ctx *context.Context, a *Node) *Node {
			return net.Call(a.Graph(), map[string]*Node{"a": a})
		}, [][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}, {0, 0, 0}})
		vars := net.Variables()
		require.Len(t, vars, 4)
		for ii := 0; ii < len(vars); ii += 2 {
			weights := tensors.MustCopyFlatData[float32](vars[ii].MustValue())
			limit := math.Sqrt(6.0 / float64(vars[ii].Shape().Dimensions[0]+vars[ii].Shape().Dimensions[1]))
			var numNonZero int
			for _, w := range weights {
				assert.LessOrEqual(t, math.Abs(float64(w)), limit)
				if w != 0 {
					numNonZero++
				}
			}
			assert.Greater(t, numNonZero, 0, "weights %q should be randomly initialized", vars[ii].Name())
			for _, b := range tensors.MustCopyFlatData[float32](vars[ii+1].MustValue()) {
				assert.Zero(t, b)
			}
		}
	})

	t.Run("MissingFeatureAtCall", func(t *testing.T) {
		ctx := context.New()
		net, err := New(ctx, []string{"a"}, 1).Done()
		require.NoError(t, err)
		require.NoError(t, net.Build(map[string]shapes.Shape{"a": shapes.Make(dtypes.Float32, 2, 1)}))
		require.Panics(t, func() {
			_ = context.MustExecOnce(backend, ctx, func(ctx *context.Context, b *Node) *Node {
				return net.Call(b.Graph(), map[string]*Node{"b": b})
			}, [][]float32{{1}, {2}})
		})
	})
}

// TestFeatureOrder checks that the output doesn't depend on the order the features are requested, and that
// repeated calls are deterministic.
func TestFeatureOrder(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	require.NoError(t, ctx.SetRNGStateFromSeed(42))
	net1, err := New(ctx.In("net"), []string{"vol", "spot"}, 2).Width(5).Depth(2).Done()
	require.NoError(t, err)
	net2, err := New(ctx.In("net").Reuse(), []string{"spot", "vol", "spot"}, 2).Width(5).Depth(2).Done()
	require.NoError(t, err)

	callFn := func(net *Network) func(ctx *context.Context, spot, vol *Node) *Node {
		return func(ctx *context.Context, spot, vol *Node) *Node {
			features := map[string]*Node{"vol": vol, "spot": spot}
			if err := net.BuildFromNodes(features); err != nil {
				panic(err)
			}
			return net.Call(spot.Graph(), features)
		}
	}
	spot := [][]float32{{1}, {2}, {3}}
	vol := [][]float32{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}}
	exec1 := context.MustNewExec(backend, ctx, callFn(net1))
	exec2 := context.MustNewExec(backend, ctx, callFn(net2))
	output1 := tensors.MustCopyFlatData[float32](exec1.MustExec1(spot, vol))
	output2 := tensors.MustCopyFlatData[float32](exec2.MustExec1(spot, vol))
	output1Again := tensors.MustCopyFlatData[float32](exec1.MustExec1(spot, vol))
	assert.Equal(t, output1, output2)
	assert.Equal(t, output1, output1Again)
	assert.Len(t, output1, 6)
}
