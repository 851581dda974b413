// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package featurenet implements a network that maps a named bag of features to an output of fixed width.
//
// The network has an explicit two-phase lifecycle:
//
//  1. Configuration: New followed by optional setters and Config.Done. No tensors are involved, and every
//     hyperparameter is validated here.
//  2. Build: Network.Build (or Network.BuildFromNodes) is called exactly once with the shapes of the available
//     features, and it creates the variables in the context.
//
// After that, Network.Call can be used in any number of graphs.
//
// If no features are requested, the network is a plain trainable vector of shape `[outputWidth]` (the
// "pure parameter" mode). Otherwise, it is a feed-forward network over the concatenation of the requested
// features, sorted by name, so the order in which the caller provides them doesn't matter.
//
// E.g.: a scalar per sample computed from the "spot" and "vol" features:
//
//	net, err := featurenet.New(ctx.In("y"), []string{"vol", "spot"}, 1).Done()
//	if err != nil { ... }
//	...
//	func ModelGraph(ctx *context.Context, spot, vol *Node) *Node {
//		features := map[string]*Node{"spot": spot, "vol": vol}
//		if err := net.BuildFromNodes(features); err != nil {
//			panic(err)
//		}
//		return net.Call(spot.Graph(), features)  // Shape [batchSize, 1]
//	}
package featurenet

import (
	"slices"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/nn"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// ParamWidth is the hyperparameter with the number of nodes of each hidden layer.
	// The default is 20 (int), and it must be > 0.
	ParamWidth = "width"

	// ParamDepth is the hyperparameter with the number of hidden layers.
	// The default is 3 (int), and it must be > 0.
	ParamDepth = "depth"

	// ParamActivation is the hyperparameter with the activation used after each hidden layer.
	// It shares the name with activations.ParamActivation. The default is "relu".
	ParamActivation = activations.ParamActivation

	// ParamFinalActivation is the hyperparameter with the activation applied to the output layer.
	// The default is "linear" (no activation).
	ParamFinalActivation = "final_activation"

	// ParamZeroModel would create a network with a zero initial value but randomized initial gradients.
	// It is not supported: setting it to true makes Config.Done fail.
	// The default is false (bool).
	ParamZeroModel = "zero_model"
)

// KnownParams lists the hyperparameters read by New.
var KnownParams = []string{ParamWidth, ParamDepth, ParamActivation, ParamFinalActivation, ParamZeroModel}

// Config is created with New and can be configured with its methods, or simply setting the corresponding
// hyperparameters in the context.
type Config struct {
	ctx                         *context.Context
	features                    []string
	outputWidth                 int
	width, depth                int
	activation, finalActivation string
	zeroModel                   bool
	initialValue                []float64
	dtype                       dtypes.DType
	trainable                   bool

	// Set by InitialValue if given the wrong number of values, reported by Done.
	hasInvalidInitialValue bool
	invalidInitialValueLen int
}

// New creates the configuration of a feature network with the given requested features and output width.
// Features are deduplicated and sorted, and they can be empty (or nil), in which case the network is simply
// a trainable vector of shape `[outputWidth]`.
//
// The hyperparameters are read from the context (see ParamWidth, ParamDepth, ParamActivation,
// ParamFinalActivation and ParamZeroModel) and they can be overridden by the corresponding methods.
//
// Errors are only reported when Done is called.
func New(ctx *context.Context, features []string, outputWidth int) *Config {
	features = slices.Clone(features)
	slices.Sort(features)
	features = slices.Compact(features)
	return &Config{
		ctx:             ctx,
		features:        features,
		outputWidth:     outputWidth,
		width:           context.GetParamOr(ctx, ParamWidth, 20),
		depth:           context.GetParamOr(ctx, ParamDepth, 3),
		activation:      context.GetParamOr(ctx, ParamActivation, "relu"),
		finalActivation: context.GetParamOr(ctx, ParamFinalActivation, "linear"),
		zeroModel:       context.GetParamOr(ctx, ParamZeroModel, false),
		dtype:           dtypes.Float32,
		trainable:       true,
	}
}

// Width sets the number of nodes of each hidden layer.
func (c *Config) Width(width int) *Config {
	c.width = width
	return c
}

// Depth sets the number of hidden layers. There is always at least one hidden layer if there are features.
func (c *Config) Depth(depth int) *Config {
	c.depth = depth
	return c
}

// Activation sets the activation after each hidden layer. See activations.TypeValues for valid names,
// plus "linear".
func (c *Config) Activation(name string) *Config {
	c.activation = name
	return c
}

// FinalActivation sets the activation of the output layer. The default is "linear".
func (c *Config) FinalActivation(name string) *Config {
	c.finalActivation = name
	return c
}

// ZeroModel is not supported, and setting it to true makes Done fail.
func (c *Config) ZeroModel(zeroModel bool) *Config {
	c.zeroModel = zeroModel
	return c
}

// InitialValue sets the initial value used in the pure parameter mode (no features).
// It takes either one value, which is broadcast to outputWidth, or exactly outputWidth values.
//
// It is ignored if there are features: the network weights are randomly initialized.
func (c *Config) InitialValue(values ...float64) *Config {
	c.hasInvalidInitialValue = false
	switch {
	case len(values) == 1 && c.outputWidth > 0:
		c.initialValue = slices.Repeat(values, c.outputWidth)
	case len(values) == c.outputWidth:
		c.initialValue = slices.Clone(values)
	default:
		c.initialValue = nil
		c.hasInvalidInitialValue = true
		c.invalidInitialValueLen = len(values)
	}
	return c
}

// DType of the variable created in the pure parameter mode. When there are features, their dtype is used.
// The default is dtypes.Float32.
func (c *Config) DType(dtype dtypes.DType) *Config {
	c.dtype = dtype
	return c
}

// Trainable sets whether the variables created by the network are trainable. The default is true.
func (c *Config) Trainable(trainable bool) *Config {
	c.trainable = trainable
	return c
}

// Done validates the configuration and returns the (not yet built) network.
func (c *Config) Done() (*Network, error) {
	if c.outputWidth <= 0 {
		return nil, errors.Errorf("featurenet: outputWidth must be > 0, got %d", c.outputWidth)
	}
	if c.width <= 0 {
		return nil, errors.Errorf("featurenet: %q must be > 0, got %d", ParamWidth, c.width)
	}
	if c.depth <= 0 {
		return nil, errors.Errorf("featurenet: %q must be > 0, got %d", ParamDepth, c.depth)
	}
	if c.hasInvalidInitialValue {
		return nil, errors.Errorf("featurenet: initial value has %d values, it must have 1 or outputWidth=%d values",
			c.invalidInitialValueLen, c.outputWidth)
	}
	if c.zeroModel {
		return nil, errors.Errorf("featurenet: %q (zero initial value with randomized gradients) is not implemented",
			ParamZeroModel)
	}
	activation, err := activationFromName(c.activation)
	if err != nil {
		return nil, errors.WithMessagef(err, "featurenet: invalid %q", ParamActivation)
	}
	finalActivation, err := activationFromName(c.finalActivation)
	if err != nil {
		return nil, errors.WithMessagef(err, "featurenet: invalid %q", ParamFinalActivation)
	}
	return &Network{
		ctx:             c.ctx,
		features:        c.features,
		outputWidth:     c.outputWidth,
		width:           c.width,
		depth:           c.depth,
		activation:      activation,
		finalActivation: finalActivation,
		initialValue:    c.initialValue,
		dtype:           c.dtype,
		trainable:       c.trainable,
	}, nil
}

// activationFromName converts the name to an activations.Type, accepting "linear" as an alias to "none".
func activationFromName(name string) (activations.Type, error) {
	switch name {
	case "", "linear", "none":
		return activations.TypeNone, nil
	}
	activation, err := activations.TypeString(name)
	if err != nil {
		return activations.TypeNone, errors.Errorf("unknown activation %q: valid values are \"linear\" or %v",
			name, activations.TypeValues())
	}
	return activation, nil
}

// Network maps a bag of named features to an output of shape `[batchSize, outputWidth]`.
// It's created with New(...).Done() and must be built once (Build or BuildFromNodes) before being called.
type Network struct {
	ctx                         *context.Context
	features                    []string
	outputWidth                 int
	width, depth                int
	activation, finalActivation activations.Type
	initialValue                []float64
	dtype                       dtypes.DType
	trainable                   bool

	built        bool
	featureWidth int
	value        *context.Variable
	layers       []denseLayer
}

// denseLayer holds the variables of one linear transformation.
type denseLayer struct {
	weights, biases *context.Variable
}

// Features returns the sorted list of requested features. It may be empty.
func (n *Network) Features() []string {
	return slices.Clone(n.features)
}

// OutputWidth of the network.
func (n *Network) OutputWidth() int { return n.outputWidth }

// FeatureWidth is the sum of the widths of the requested features. It is only known after the network is built.
func (n *Network) FeatureWidth() int { return n.featureWidth }

// IsBuilt returns whether Build has been called successfully.
func (n *Network) IsBuilt() bool { return n.built }

// IsParameter returns whether the network is in pure parameter mode (no features).
//
// Once built, it is decided by the total width of the requested features: features of width 0 also yield a
// pure parameter network.
func (n *Network) IsParameter() bool {
	if n.built {
		return n.featureWidth == 0
	}
	return len(n.features) == 0
}

// Build creates the variables of the network, given the shapes of the available features.
// Each feature shape must be of rank 2, `[batchSize, featureWidth]`. Features not requested are ignored.
//
// If a requested feature is missing, it returns an *UnknownFeatureError and no variable is created.
//
// It panics if called more than once.
func (n *Network) Build(featureShapes map[string]shapes.Shape) error {
	if n.built {
		exceptions.Panicf("featurenet: Build called twice for network in scope %q", n.ctx.Scope())
	}

	// Validate all features before creating any variable.
	var featureWidth int
	dtype := n.dtype
	for ii, feature := range n.features {
		shape, found := featureShapes[feature]
		if !found {
			return newUnknownFeatureError(feature, featureShapes, n.features)
		}
		if shape.Rank() != 2 {
			return errors.Errorf("featurenet: feature %q must have rank 2 ([batchSize, featureWidth]), got shape %s",
				feature, shape)
		}
		if ii == 0 {
			dtype = shape.DType
		} else if shape.DType != dtype {
			return errors.Errorf("featurenet: all features must have the same dtype, feature %q has dtype %s, "+
				"but feature %q has dtype %s", n.features[0], dtype, feature, shape.DType)
		}
		featureWidth += shape.Dimensions[1]
	}
	n.featureWidth = featureWidth

	if featureWidth == 0 {
		n.buildParameter()
	} else {
		n.buildLayers(dtype)
	}
	n.built = true
	klog.V(1).Infof("featurenet: built %q with features %v (width %d), %d parameters",
		n.ctx.Scope(), n.features, n.featureWidth, n.NumParameters())
	return nil
}

// BuildFromNodes builds the network using the shapes of the given nodes, if it is not built yet.
// It is a no-op if the network is already built.
func (n *Network) BuildFromNodes(features map[string]*Node) error {
	if n.built {
		return nil
	}
	featureShapes := make(map[string]shapes.Shape, len(features))
	for name, node := range features {
		if node == nil {
			continue
		}
		featureShapes[name] = node.Shape()
	}
	return n.Build(featureShapes)
}

func (n *Network) buildParameter() {
	ctx := n.ctx
	shape := shapes.Make(n.dtype, n.outputWidth)
	if n.initialValue != nil {
		ctx = ctx.WithInitializer(initializers.BroadcastTensorToShape(tensors.FromValue(n.initialValue)))
	} else {
		ctx = ctx.WithInitializer(randomValueInitializer(ctx))
	}
	n.value = ctx.VariableWithShape("value", shape).SetTrainable(n.trainable)
}

func (n *Network) buildLayers(dtype dtypes.DType) {
	inputWidth := n.featureWidth
	n.layers = make([]denseLayer, 0, n.depth+1)
	for ii := range n.depth + 1 {
		var layerCtx *context.Context
		outputWidth := n.width
		if ii < n.depth {
			layerCtx = n.ctx.Inf("featurenet_hidden_layer_%d", ii)
		} else {
			layerCtx = n.ctx.In("featurenet_output_layer")
			outputWidth = n.outputWidth
		}
		weights := layerCtx.WithInitializer(initializers.GlorotUniformFn(layerCtx)).
			VariableWithShape("weights", shapes.Make(dtype, inputWidth, outputWidth)).
			SetTrainable(n.trainable)
		biases := layerCtx.WithInitializer(initializers.Zero).
			VariableWithShape("biases", shapes.Make(dtype, outputWidth)).
			SetTrainable(n.trainable)
		n.layers = append(n.layers, denseLayer{weights: weights, biases: biases})
		inputWidth = outputWidth
	}
}

// Variables returns the variables created by Build, in creation order.
func (n *Network) Variables() []*context.Variable {
	if n.value != nil {
		return []*context.Variable{n.value}
	}
	vars := make([]*context.Variable, 0, 2*len(n.layers))
	for _, layer := range n.layers {
		vars = append(vars, layer.weights, layer.biases)
	}
	return vars
}

// NumParameters returns the total number of scalar values in the network's variables.
func (n *Network) NumParameters() int {
	var total int
	for _, v := range n.Variables() {
		total += v.Shape().Size()
	}
	return total
}

// Call evaluates the network on the given features.
//
// In pure parameter mode the features are ignored and it returns the variable with shape `[1, outputWidth]`,
// to be broadcast over the batch. Otherwise, it returns shape `[batchSize, outputWidth]`.
//
// Features not requested are ignored. It panics if the network is not built, or if a requested feature
// is missing (with an *UnknownFeatureError).
func (n *Network) Call(g *Graph, features map[string]*Node) *Node {
	if !n.built {
		exceptions.Panicf("featurenet: network in scope %q called before it was built", n.ctx.Scope())
	}
	if n.featureWidth == 0 {
		return Reshape(n.value.ValueGraph(g), 1, n.outputWidth)
	}

	inputs := make([]*Node, 0, len(n.features))
	for _, feature := range n.features {
		node, found := features[feature]
		if !found || node == nil {
			featureShapes := make(map[string]shapes.Shape, len(features))
			for name, node := range features {
				if node != nil {
					featureShapes[name] = node.Shape()
				}
			}
			panic(newUnknownFeatureError(feature, featureShapes, n.features))
		}
		inputs = append(inputs, node)
	}
	var x *Node
	if len(inputs) == 1 {
		x = inputs[0]
	} else {
		x = Concatenate(inputs, 1)
	}
	if x.Rank() != 2 || x.Shape().Dimensions[1] != n.featureWidth {
		exceptions.Panicf("featurenet: concatenated features %v have shape %s, but the network was built for "+
			"%d features", n.features, x.Shape(), n.featureWidth)
	}

	for ii, layer := range n.layers {
		x = nn.Dense(x, layer.weights.ValueGraph(g), layer.biases.ValueGraph(g))
		if ii < len(n.layers)-1 {
			x = activations.Apply(n.activation, x)
		} else {
			x = activations.Apply(n.finalActivation, x)
		}
	}
	return x
}
