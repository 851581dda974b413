// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package oce

import (
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/graph/nanlogger"
	"github.com/pkg/errors"
)

// Stages tagged in a *NumericalError.
const (
	StageY = "oce_y"
	StageU = "oce_u"
	StageD = "oce_d"
)

// NumericalError reports a NaN or Inf value computed by the objective.
//
// It is raised (panicked) during the execution of a graph where the objective nanlogger is attached, see
// Objective.AttachToExec. Evaluator.Eval returns it as an error.
type NumericalError struct {
	// Stage is one of StageY, StageU or StageD.
	Stage string

	// Scope of the objective context, followed by the stage.
	Scope []string

	// StackTrace of where the traced node was created.
	StackTrace errors.StackTrace
}

// Error implements the error interface.
func (e *NumericalError) Error() string {
	return fmt.Sprintf("oce: numerical error, non-finite value (NaN or Inf) computing %s (scope %q)",
		e.Stage, strings.Join(e.Scope, " > "))
}

func newNumericalError(info *nanlogger.Trace) *NumericalError {
	e := &NumericalError{Scope: info.Scope, StackTrace: info.StackTrace}
	if len(info.Scope) > 0 {
		e.Stage = info.Scope[len(info.Scope)-1]
	}
	return e
}

// newNumericsTracker returns a nanlogger that panics with a *NumericalError on the first non-finite value.
func newNumericsTracker() *nanlogger.NanLogger {
	return nanlogger.New().WithHandler(func(info *nanlogger.Trace) {
		panic(newNumericalError(info))
	})
}
