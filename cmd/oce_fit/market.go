package main

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// FeatureVol is the name of the feature observed at time 0: the volatility of the underlying.
const FeatureVol = "vol"

// marketConfig describes a synthetic one-period market: an underlying with spot 1 and a random volatility drawn
// uniformly from [MinVol, MaxVol], and a short call with strike Strike maturing at Maturity (in years).
type marketConfig struct {
	NumSamples     int
	Seed           int64
	MinVol, MaxVol float64
	Strike         float64
	Maturity       float64

	// Hedge with a static Black-Scholes delta, paying CostRate per unit of underlying traded.
	Hedge    bool
	CostRate float64
}

// market holds the generated samples. Payoff, PnL and Cost have shape [NumSamples], Vol [NumSamples, 1].
type market struct {
	Payoff, PnL, Cost []float32
	Vol               [][]float32
}

func (c marketConfig) validate() error {
	if c.NumSamples <= 0 {
		return errors.Errorf("number of samples must be > 0, got %d", c.NumSamples)
	}
	if c.MinVol <= 0 || c.MaxVol < c.MinVol {
		return errors.Errorf("invalid volatility range [%g, %g]", c.MinVol, c.MaxVol)
	}
	if c.Strike <= 0 || c.Maturity <= 0 {
		return errors.Errorf("strike (%g) and maturity (%g) must be > 0", c.Strike, c.Maturity)
	}
	if c.CostRate < 0 {
		return errors.Errorf("cost rate must be >= 0, got %g", c.CostRate)
	}
	return nil
}

// generateMarket samples the market, deterministically for a given seed.
func generateMarket(c marketConfig) (*market, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(c.Seed))
	m := &market{
		Payoff: make([]float32, c.NumSamples),
		PnL:    make([]float32, c.NumSamples),
		Cost:   make([]float32, c.NumSamples),
		Vol:    make([][]float32, c.NumSamples),
	}
	sqrtT := math.Sqrt(c.Maturity)
	for ii := range c.NumSamples {
		vol := c.MinVol + (c.MaxVol-c.MinVol)*rng.Float64()
		z := rng.NormFloat64()
		spotT := math.Exp(-0.5*vol*vol*c.Maturity + vol*sqrtT*z)
		m.Vol[ii] = []float32{float32(vol)}
		m.Payoff[ii] = float32(-max(spotT-c.Strike, 0))
		if c.Hedge {
			delta := callDelta(vol, c.Strike, c.Maturity)
			m.PnL[ii] = float32(delta * (spotT - 1))
			m.Cost[ii] = float32(c.CostRate * delta)
		}
	}
	return m, nil
}

// callDelta is the Black-Scholes delta of a call on an underlying with spot 1 and zero rates.
func callDelta(vol, strike, maturity float64) float64 {
	stdDev := vol * math.Sqrt(maturity)
	d1 := (-math.Log(strike) + 0.5*stdDev*stdDev) / stdDev
	return 0.5 * math.Erfc(-d1/math.Sqrt2)
}
