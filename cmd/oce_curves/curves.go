package main

import (
	"strings"

	"github.com/gomlx/deephedging/pkg/ml/objectives/oce"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// curve holds the utility u(x+y)-y and its derivative d for one utility family, over a grid of gains x.
type curve struct {
	utility oce.Utility
	x, u, d []float64
}

// parseUtilities parses a comma-separated list of utility names, or "all".
func parseUtilities(list string) ([]oce.Utility, error) {
	if strings.TrimSpace(strings.ToLower(list)) == "all" {
		return oce.UtilityValues(), nil
	}
	var utilities []oce.Utility
	seen := make(map[oce.Utility]bool)
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		utility, err := oce.ParseUtility(name)
		if err != nil {
			return nil, err
		}
		if seen[utility] {
			continue
		}
		seen[utility] = true
		utilities = append(utilities, utility)
	}
	if len(utilities) == 0 {
		return nil, errors.Errorf("no utility given, choose from %q or \"all\"", oce.UtilityStrings())
	}
	return utilities, nil
}

// computeCurves evaluates u and d of each utility on the gains grid, with risk aversion lambda and intercept y.
func computeCurves(backend backends.Backend, utilities []oce.Utility, lambda, y float64, grid []float64) (
	curves []curve, err error) {
	err = exceptions.TryCatch[error](func() {
		for _, utility := range utilities {
			exec := MustNewExec(backend, func(x, y *Node) (*Node, *Node) {
				return oce.Apply(utility, lambda, x, y)
			})
			outputs := exec.MustExec(grid, y)
			curves = append(curves, curve{
				utility: utility,
				x:       grid,
				u:       tensors.MustCopyFlatData[float64](outputs[0]),
				d:       tensors.MustCopyFlatData[float64](outputs[1]),
			})
			exec.Finalize()
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to compute utility curves")
	}
	return curves, nil
}
