// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package oce

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// MinLambda is the smallest risk aversion used as is: anything below it is numerically indistinguishable from
// zero, and the mean utility is used instead.
const MinLambda = 1e-12

// Apply computes the OCE utility `u(x+y) - y` and its derivative `d` with respect to x, elementwise, for the
// given utility family and risk aversion lambda. The mean family returns `u = x+y`, without subtracting y.
//
// The derivative d is given in closed form, and it does not depend on y. For the cvar family it carries the
// opposite sign of the slope of u.
//
// y can be nil (taken as 0), a scalar, or have the same shape as x. If lambda < MinLambda the mean utility is
// used, regardless of utility. It panics if lambda is negative or the utility is not valid.
func Apply(utility Utility, lambda float64, x, y *Node) (u, d *Node) {
	if lambda < 0 {
		exceptions.Panicf("oce: risk aversion lambda cannot be negative, got %g", lambda)
	}
	if lambda < MinLambda {
		utility = UtilityMean
	}
	y = broadcastIntercept(x, y)
	gains := Add(x, y)

	var base *Node
	switch utility {
	case UtilityMean:
		// The intercept is not subtracted: u = gains.
		return gains, OnesLike(gains)
	case UtilityExp:
		base, d = entropic(gains, lambda)
	case UtilityExp2:
		base, d = exp2(gains, lambda)
	case UtilityVicky:
		base, d = vicky(gains, lambda)
	case UtilityCVaR:
		base, d = cvar(gains, lambda)
	case UtilityQuad:
		base, d = quad(gains, lambda)
	default:
		exceptions.Panicf("oce: unknown utility %s", utility)
	}
	u = Sub(base, y)
	return
}

// broadcastIntercept returns y with the same shape and dtype as x.
func broadcastIntercept(x, y *Node) *Node {
	if y == nil {
		return ZerosLike(x)
	}
	if y.DType() != x.DType() {
		y = ConvertDType(y, x.DType())
	}
	if y.IsScalar() {
		return BroadcastToShape(y, x.Shape())
	}
	if !y.Shape().Equal(x.Shape()) {
		exceptions.Panicf("oce: intercept y must be a scalar or have the same shape as x=%s, got %s",
			x.Shape(), y.Shape())
	}
	return y
}

// filled returns a tensor shaped as x with the given value.
func filled(x *Node, value float64) *Node {
	return MulScalar(OnesLike(x), value)
}

// entropic returns the robust form of (1 - exp(-lambda gains)) / lambda: the batch minimum is taken out of the
// exponent and added back, and it is not differentiated through.
func entropic(gains *Node, lambda float64) (u, d *Node) {
	m := StopGradient(ReduceAllMin(gains))
	u = DivScalar(OneMinus(Exp(MulScalar(Sub(gains, m), -lambda))), lambda)
	u = Add(u, m)
	d = Exp(MulScalar(gains, -lambda))
	return
}

// exp2 is exponential for positive gains and quadratic otherwise. Each branch is evaluated on its own half line
// only, so the branch not selected never overflows.
func exp2(gains *Node, lambda float64) (u, d *Node) {
	positive := GreaterThan(gains, ZerosLike(gains))
	gainsPos := MaxScalar(gains, 0)
	gainsNeg := MinScalar(gains, 0)

	expPos := Exp(MulScalar(gainsPos, -lambda))
	uPos := DivScalar(OneMinus(expPos), lambda)
	uNeg := Sub(gainsNeg, MulScalar(Square(gainsNeg), 0.5*lambda))
	dNeg := OneMinus(MulScalar(gainsNeg, lambda))

	u = Where(positive, uPos, uNeg)
	d = Where(positive, expPos, dNeg)
	return
}

func vicky(gains *Node, lambda float64) (u, d *Node) {
	scaled := MulScalar(gains, lambda)
	root := Sqrt(AddScalar(Square(scaled), 1))
	u = DivScalar(Sub(AddScalar(scaled, 1), root), lambda)
	d = OneMinus(Div(scaled, root))
	return
}

// cvar is (1+lambda) min(gains, 0). Its d is -(1+lambda) for negative gains, the negated slope of u, and 0
// otherwise.
func cvar(gains *Node, lambda float64) (u, d *Node) {
	u = MulScalar(MinScalar(gains, 0), 1+lambda)
	negative := LessThan(gains, ZerosLike(gains))
	d = Where(negative, filled(gains, -(1+lambda)), ZerosLike(gains))
	return
}

// quad is a quadratic penalty -0.5 lambda (gains-x0)^2 + 0.5 x0^2 for gains below x0 = 1/lambda, and flat
// (0.5 x0^2) above it. It's continuous with continuous derivative at x0.
func quad(gains *Node, lambda float64) (u, d *Node) {
	x0 := 1 / lambda
	diff := MinScalar(AddScalar(gains, -x0), 0) // 0 above x0.
	u = AddScalar(MulScalar(Square(diff), -0.5*lambda), 0.5*x0*x0)
	d = MulScalar(diff, -lambda)
	return
}
