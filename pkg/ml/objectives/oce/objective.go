// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package oce implements the optimized certainty equivalent (OCE) objective, a monetary utility used as the
// training objective of hedging models.
//
// For terminal gains X the OCE is `sup_y E[u(X+y) - y]`, for a concave utility u (see Utility). Here the
// intercept y is itself trainable: either a plain scalar, or a featurenet.Network over features observed at
// time 0. Maximizing the mean of `u(X+y) - y` jointly over the hedging model and y gives the OCE.
//
// The objective is configured with context hyperparameters:
//
//   - ParamUtility ("utility"): the utility family, default "exp2".
//   - ParamLambda ("lmbda"): the risk aversion, default 1.0.
//   - ParamFeatures ("features") in the ScopeY ("y") sub-scope: features used by y, default none.
//   - featurenet hyperparameters in the "y/network" sub-scope.
//
// Example:
//
//	ctx := context.New()
//	ctx.SetParams(map[string]any{oce.ParamUtility: "cvar", oce.ParamLambda: 1.0})
//	objective, err := oce.New(ctx)
//	if err != nil { ... }
//	modelFn := func(ctx *context.Context, spec any, inputs []*Node) []*Node {
//		payoff, pnl, cost := inputs[0], inputs[1], inputs[2]
//		return []*Node{objective.Call(oce.Data{Payoff: payoff, PnL: pnl, Cost: cost})}
//	}
//	lossFn := func(_, predictions []*Node) *Node { return Neg(ReduceAllMean(predictions[0])) }
//	trainer := train.NewTrainer(backend, ctx, modelFn, lossFn, optimizers.FromContext(ctx), nil, nil)
//	objective.AttachToTrainer(trainer)
//
// Non-finite values of y, u or d are reported as a *NumericalError only in graphs built after the objective is
// attached to their executor (AttachToExec or AttachToTrainer). Evaluator attaches it itself. Graphs built before
// any attachment are not traced.
package oce

import (
	"slices"

	"github.com/gomlx/deephedging/pkg/ml/layers/featurenet"
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/nanlogger"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Objective computes the OCE utility `u(X+y) - y` per sample, where the intercept y is a trainable
// featurenet.Network.
//
// It's created with New, which reads and validates all its hyperparameters from the context.
type Objective struct {
	ctx      *context.Context
	utility  Utility
	lambda   float64
	yNetwork *featurenet.Network
	numerics *nanlogger.NanLogger
	attached bool
}

// Result of Objective.Compute, all with shape `[batchSize]`.
type Result struct {
	// U is the utility `u(X+y) - y`.
	U *Node

	// D is the derivative of U with respect to X.
	D *Node

	// Y is the intercept, broadcast to the batch.
	Y *Node
}

// Data holds the inputs to Objective.Call. Payoff, PnL and Cost have shape `[batchSize]`, and the features
// shape `[batchSize, featureWidth]`.
type Data struct {
	// FeaturesTime0 are the features available at time 0, used by the intercept y. It may be nil.
	FeaturesTime0 map[string]*Node

	// Payoff is the terminal payoff. Required.
	Payoff *Node

	// PnL is the trading profit and loss. Optional.
	PnL *Node

	// Cost is the trading cost. Optional.
	Cost *Node
}

// New creates an Objective configured from the hyperparameters in ctx (see package documentation).
//
// Any invalid hyperparameter, or a hyperparameter set in the objective's own scopes that is not used, is
// reported as an error.
func New(ctx *context.Context) (*Objective, error) {
	utility, err := utilityFromContext(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "oce: in scope %q", ctx.Scope())
	}
	lambda, err := lambdaFromContext(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "oce: in scope %q", ctx.Scope())
	}
	if lambda < 0 {
		return nil, errors.Errorf("oce: %q must be >= 0, got %g", ParamLambda, lambda)
	}
	if lambda == 0 && utility != UtilityMean {
		return nil, errors.Errorf("oce: %q must be > 0 for utility %q, use utility %q for zero risk aversion",
			ParamLambda, utility, UtilityMean)
	}
	if lambda < MinLambda && utility != UtilityMean {
		klog.V(1).Infof("oce: %q=%g is below %g, using utility %q instead of %q",
			ParamLambda, lambda, MinLambda, UtilityMean, utility)
		utility = UtilityMean
	}
	if err := checkUnknownParams(ctx, utility); err != nil {
		return nil, err
	}

	o := &Objective{
		ctx:     ctx,
		utility: utility,
		lambda:  lambda,
	}
	if context.GetParamOr(ctx, ParamCheckNumerics, true) {
		o.numerics = newNumericsTracker()
	}
	if utility == UtilityMean {
		klog.Warningf("oce: using utility %q, the intercept y is fixed to 0", UtilityMean)
		o.yNetwork, err = featurenet.New(ctx.In("y_fixed"), nil, 1).
			Width(1).Depth(1).Activation("linear").FinalActivation("linear").ZeroModel(false).
			InitialValue(0).Trainable(false).Done()
	} else {
		yCtx := ctx.In(ScopeY)
		var features []string
		features, err = featuresFromContext(yCtx)
		if err != nil {
			return nil, errors.WithMessagef(err, "oce: in scope %q", yCtx.Scope())
		}
		o.yNetwork, err = featurenet.New(yCtx.In(ScopeNetwork), features, 1).InitialValue(0).Done()
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "oce: failed to configure the intercept y")
	}
	return o, nil
}

// Utility used. It's UtilityMean if the configured risk aversion was below MinLambda.
func (o *Objective) Utility() Utility { return o.utility }

// Lambda returns the risk aversion.
func (o *Objective) Lambda() float64 { return o.lambda }

// Features used by the intercept y. Empty if y is a plain parameter or fixed (mean utility).
func (o *Objective) Features() []string { return o.yNetwork.Features() }

// YNetwork returns the network computing the intercept y.
func (o *Objective) YNetwork() *featurenet.Network { return o.yNetwork }

// NanLogger used to track non-finite values, or nil if ParamCheckNumerics is false.
func (o *Objective) NanLogger() *nanlogger.NanLogger { return o.numerics }

// AttachToExec attaches the objective's numerical tracking to an executor running graphs that use it: a NaN
// or Inf in y, u or d will then panic with a *NumericalError. It must be called before the executor builds its
// graphs.
//
// It's a no-op if ParamCheckNumerics is false.
func (o *Objective) AttachToExec(exec *context.Exec) {
	if o.numerics == nil {
		return
	}
	o.numerics.AttachToExec(exec)
	o.attached = true
}

// AttachToTrainer attaches the objective's numerical tracking to every executor the trainer creates.
// See AttachToExec.
func (o *Objective) AttachToTrainer(trainer *train.Trainer) {
	if o.numerics == nil {
		return
	}
	trainer.OnExecCreation(func(exec *context.Exec, _ train.GraphType) {
		o.AttachToExec(exec)
	})
}

// Build creates the variables of the intercept y, given the shapes of the features available at time 0.
//
// It returns a *featurenet.UnknownFeatureError if a feature required by y is missing. It's optional: Compute
// builds y on its first call.
func (o *Objective) Build(featureShapes map[string]shapes.Shape) error {
	if o.yNetwork.IsBuilt() {
		return nil
	}
	return o.yNetwork.Build(featureShapes)
}

// Compute returns the utility `u(X+y) - y` and its derivative with respect to x, where y is computed from the
// features at time 0 (featuresTime0 may be nil if y uses no features).
//
// x must have shape `[batchSize]`. It panics with a *featurenet.UnknownFeatureError if a feature required by y
// is missing.
func (o *Objective) Compute(x *Node, featuresTime0 map[string]*Node) Result {
	if x.Rank() != 1 {
		exceptions.Panicf("oce: gains x must have shape [batchSize], got %s", x.Shape())
	}
	g := x.Graph()
	if err := o.yNetwork.BuildFromNodes(featuresTime0); err != nil {
		panic(err)
	}
	y := o.yNetwork.Call(g, featuresTime0)
	if o.yNetwork.IsParameter() {
		y = Reshape(y)
	} else {
		y = Reshape(y, y.Shape().Dimensions[0])
	}
	if y.DType() != x.DType() {
		y = ConvertDType(y, x.DType())
	}

	o.trace(y, StageY)
	u, d := Apply(o.utility, o.lambda, x, y)
	o.trace(u, StageU)
	o.trace(d, StageD)
	return Result{U: u, D: d, Y: broadcastIntercept(x, y)}
}

// trace the node for non-finite values, if numerical tracking is enabled and attached to an executor.
func (o *Objective) trace(node *Node, stage string) {
	if o.numerics == nil || !o.attached {
		return
	}
	o.numerics.PushScope(o.ctx.Scope())
	o.numerics.TraceFirstNaN(node, stage)
	o.numerics.PopScope()
}

// Call returns the utility `u(X+y) - y` for `X = payoff + pnl - cost`. See Compute.
func (o *Objective) Call(data Data) *Node {
	if data.Payoff == nil {
		exceptions.Panicf("oce: Data.Payoff is required")
	}
	x := data.Payoff
	if data.PnL != nil {
		x = Add(x, data.PnL)
	}
	if data.Cost != nil {
		x = Sub(x, data.Cost)
	}
	return o.Compute(x, data.FeaturesTime0).U
}

// Loss returns the scalar `-mean(u)`, to be minimized by an optimizer.
func (o *Objective) Loss(data Data) *Node {
	return Neg(ReduceAllMean(o.Call(data)))
}

// sortedFeatureNames returns the keys of the features map, sorted.
func sortedFeatureNames[T any](features map[string]T) []string {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
