// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package oce

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

// Evaluator computes the objective on concrete tensors, for instance after training, to inspect the
// utility and its derivative per sample.
type Evaluator struct {
	objective    *Objective
	exec         *context.Exec
	featureNames []string
}

// NewEvaluator creates an Evaluator for the objective. The context ctx holds the variables of the objective
// (the intercept y), and it is usually the same one used for training.
func NewEvaluator(backend backends.Backend, ctx *context.Context, objective *Objective) (*Evaluator, error) {
	e := &Evaluator{objective: objective}
	var err error
	e.exec, err = context.NewExec(backend, ctx, e.graphFn)
	if err != nil {
		return nil, errors.WithMessage(err, "oce: failed to create evaluator")
	}
	objective.AttachToExec(e.exec)
	return e, nil
}

func (e *Evaluator) graphFn(ctx *context.Context, inputs []*Node) []*Node {
	x := inputs[0]
	features := make(map[string]*Node, len(e.featureNames))
	for ii, name := range e.featureNames {
		features[name] = inputs[ii+1]
	}
	result := e.objective.Compute(x, features)
	return []*Node{result.U, result.D}
}

// Eval returns the utility u and its derivative d for the gains x (shape `[batchSize]`) and the features at
// time 0 (each shaped `[batchSize, featureWidth]`), which may be nil.
//
// The set of feature names must be the same in all calls. Missing features, numerical faults (a
// *NumericalError) and graph building failures are returned as errors.
func (e *Evaluator) Eval(x *tensors.Tensor, features map[string]*tensors.Tensor) (u, d *tensors.Tensor, err error) {
	names := sortedFeatureNames(features)
	if e.featureNames == nil {
		e.featureNames = names
	} else if !slices.Equal(e.featureNames, names) {
		return nil, nil, errors.Errorf("oce: Evaluator.Eval called with features %q, but it was first called "+
			"with features %q", names, e.featureNames)
	}
	args := make([]any, 0, len(names)+1)
	args = append(args, x)
	for _, name := range names {
		args = append(args, features[name])
	}

	var outputs []*tensors.Tensor
	err = exceptions.TryCatch[error](func() {
		outputs = e.exec.MustExec(args...)
	})
	if err != nil {
		return nil, nil, err
	}
	return outputs[0], outputs[1], nil
}
