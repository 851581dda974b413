// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package oce

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/deephedging/pkg/ml/layers/featurenet"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

const (
	// ParamUtility is the hyperparameter with the utility family: one of UtilityStrings, or a Utility value.
	// The default is "exp2".
	ParamUtility = "utility"

	// ParamLambda is the hyperparameter with the risk aversion. It must be >= 0, and it can only be 0 for the
	// "mean" utility. The default is 1.0.
	ParamLambda = "lmbda"

	// ParamCheckNumerics enables tracking of non-finite values in y, u and d, which are reported with a
	// *NumericalError. The default is true.
	ParamCheckNumerics = "check_numerics"

	// ScopeY is the sub-scope with the configuration of the intercept y.
	ScopeY = "y"

	// ParamFeatures is the hyperparameter, in the ScopeY sub-scope, with the list of features at time 0 used
	// to compute y. It can be a []string or a comma-separated string. The default is empty, and y is a plain
	// trainable scalar.
	ParamFeatures = "features"

	// ScopeNetwork is the sub-scope of ScopeY with the featurenet hyperparameters of the y network.
	ScopeNetwork = "network"
)

var (
	// DefaultUtility used if ParamUtility is not set.
	DefaultUtility = UtilityExp2

	// DefaultLambda used if ParamLambda is not set.
	DefaultLambda = 1.0
)

// KnownParams lists the hyperparameters read from the objective scope.
var KnownParams = []string{ParamUtility, ParamLambda, ParamCheckNumerics}

// utilityFromContext reads ParamUtility, which may be a string or a Utility.
func utilityFromContext(ctx *context.Context) (Utility, error) {
	value, found := ctx.GetParam(ParamUtility)
	if !found || value == nil {
		return DefaultUtility, nil
	}
	switch v := value.(type) {
	case Utility:
		if !v.IsAUtility() {
			return DefaultUtility, errors.Errorf("invalid %q value %d", ParamUtility, int(v))
		}
		return v, nil
	case string:
		u, err := ParseUtility(v)
		if err != nil {
			return DefaultUtility, errors.WithMessagef(err, "invalid %q", ParamUtility)
		}
		return u, nil
	default:
		return DefaultUtility, errors.Errorf("invalid %q: expected a string, got %T (%v)", ParamUtility, value, value)
	}
}

// lambdaFromContext reads ParamLambda, accepting any numeric type.
func lambdaFromContext(ctx *context.Context) (float64, error) {
	value, found := ctx.GetParam(ParamLambda)
	if !found || value == nil {
		return DefaultLambda, nil
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, errors.Errorf("invalid %q: expected a number, got %T (%v)", ParamLambda, value, value)
	}
}

// featuresFromContext reads ParamFeatures, which may be a []string, a []any of strings (when loaded from
// a checkpoint) or a comma-separated string.
func featuresFromContext(ctx *context.Context) ([]string, error) {
	value, found := ctx.GetParam(ParamFeatures)
	if !found || value == nil {
		return nil, nil
	}
	var features []string
	switch v := value.(type) {
	case []string:
		features = slices.Clone(v)
	case []any:
		for ii, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, errors.Errorf("invalid %q: element #%d is a %T (%v), not a string", ParamFeatures, ii, item, item)
			}
			features = append(features, name)
		}
	case string:
		features = strings.Split(v, ",")
	default:
		return nil, errors.Errorf("invalid %q: expected a list of strings, got %T (%v)", ParamFeatures, value, value)
	}
	features = slices.DeleteFunc(features, func(name string) bool {
		return strings.TrimSpace(name) == ""
	})
	for ii, name := range features {
		features[ii] = strings.TrimSpace(name)
	}
	return features, nil
}

// checkUnknownParams returns an error listing the hyperparameters set directly in the objective's own scopes
// that are not read by it. Parameters in the root scope are shared with other models, and are not checked.
func checkUnknownParams(ctx *context.Context, utility Utility) error {
	known := map[string][]string{
		ctx.In(ScopeY).Scope():                  {ParamFeatures},
		ctx.In(ScopeY).In(ScopeNetwork).Scope(): featurenet.KnownParams,
	}
	if ctx.Scope() != context.RootScope {
		known[ctx.Scope()] = KnownParams
	}
	var unknown []string
	ctx.EnumerateParams(func(scope, key string, _ any) {
		knownKeys, checked := known[scope]
		if !checked {
			return
		}
		if utility == UtilityMean && scope != ctx.Scope() {
			// y is fixed, and its configuration is ignored.
			return
		}
		if !slices.Contains(knownKeys, key) {
			unknown = append(unknown, fmt.Sprintf("%s/%s", scope, key))
		}
	})
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return errors.Errorf("oce: unknown hyperparameters %q", unknown)
	}
	return nil
}
