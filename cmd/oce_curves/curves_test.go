package main

import (
	"testing"

	"github.com/gomlx/deephedging/pkg/ml/objectives/oce"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestParseUtilities(t *testing.T) {
	utilities, err := parseUtilities("all")
	require.NoError(t, err)
	assert.Equal(t, oce.UtilityValues(), utilities)

	utilities, err = parseUtilities("cvar, Exp2,,cvar,entropy")
	require.NoError(t, err)
	assert.Equal(t, []oce.Utility{oce.UtilityCVaR, oce.UtilityExp2, oce.UtilityExp}, utilities)

	_, err = parseUtilities("exp2,median")
	require.ErrorContains(t, err, "unknown utility")
	_, err = parseUtilities(" , ")
	require.Error(t, err)
}

func TestComputeCurves(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	grid := linspace(-2.0, 2.0, 5)
	curves, err := computeCurves(backend, []oce.Utility{oce.UtilityMean, oce.UtilityCVaR}, 1, 0.5, grid)
	require.NoError(t, err)
	require.Len(t, curves, 2)

	// mean: u = x+y, d = 1.
	assert.Equal(t, oce.UtilityMean, curves[0].utility)
	assert.Equal(t, []float64{-1.5, -0.5, 0.5, 1.5, 2.5}, curves[0].u)
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, curves[0].d)

	// cvar with lambda=1: u(g) = 2*min(g, 0), with g = x+0.5.
	assert.Equal(t, []float64{-3.5, -1.5, -0.5, -0.5, -0.5}, curves[1].u)
	assert.Equal(t, []float64{-2, -2, 0, 0, 0}, curves[1].d)

	_, err = computeCurves(backend, []oce.Utility{oce.Utility(100)}, 1, 0, grid)
	require.Error(t, err)
}
