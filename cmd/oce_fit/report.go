package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/deephedging/internal/tables"
	"github.com/gomlx/deephedging/pkg/ml/objectives/oce"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/janpfeifer/must"
)

// summary of the objective evaluated over all samples of the market.
type summary struct {
	MeanGains, MeanU, MeanD float64
	MinU, MaxU             float64
}

// summarize computes the summary statistics of the gains x and the objective outputs u and d.
func summarize(x, u, d []float32) summary {
	s := summary{MinU: float64(u[0]), MaxU: float64(u[0])}
	for ii := range u {
		s.MeanGains += float64(x[ii])
		s.MeanU += float64(u[ii])
		s.MeanD += float64(d[ii])
		s.MinU = min(s.MinU, float64(u[ii]))
		s.MaxU = max(s.MaxU, float64(u[ii]))
	}
	n := float64(len(u))
	s.MeanGains /= n
	s.MeanU /= n
	s.MeanD /= n
	return s
}

// report evaluates the trained objective on all samples of the market and prints a summary table.
func report(backend backends.Backend, ctx *context.Context, objective *oce.Objective, m *market) {
	gains := make([]float32, len(m.Payoff))
	for ii := range gains {
		gains[ii] = m.Payoff[ii] + m.PnL[ii] - m.Cost[ii]
	}
	var features map[string]*tensors.Tensor
	if len(objective.Features()) > 0 {
		features = map[string]*tensors.Tensor{FeatureVol: tensors.FromValue(m.Vol)}
	}
	evaluator := must.M1(oce.NewEvaluator(backend, ctx, objective))
	u, d := must.M2(evaluator.Eval(tensors.FromValue(gains), features))
	s := summarize(gains, tensors.MustCopyFlatData[float32](u), tensors.MustCopyFlatData[float32](d))

	fmt.Println(tables.TitleStyle.Render("Summary"))
	table := tables.New(lipgloss.Left, lipgloss.Right)
	table.Row("utility", objective.Utility().String())
	table.Row("lambda", humanize.FtoaWithDigits(objective.Lambda(), 6))
	if len(objective.Features()) > 0 {
		table.Row("y features", fmt.Sprintf("%q", objective.Features()))
	}
	table.Row("global_step", humanize.Comma(optimizers.GetGlobalStep(ctx)))
	table.Row("# samples", humanize.Comma(int64(len(gains))))
	table.Row("# y parameters", humanize.Comma(int64(objective.YNetwork().NumParameters())))
	if objective.YNetwork().IsParameter() {
		y := tensors.MustCopyFlatData[float32](objective.YNetwork().Variables()[0].MustValue())[0]
		table.Row("y", humanize.FtoaWithDigits(float64(y), 6))
	}
	table.Row("mean gains", humanize.FtoaWithDigits(s.MeanGains, 6))
	table.Row("OCE = mean u", humanize.FtoaWithDigits(s.MeanU, 6))
	table.Row("mean d", humanize.FtoaWithDigits(s.MeanD, 6))
	table.Row("u range", fmt.Sprintf("[%s, %s]",
		humanize.FtoaWithDigits(s.MinU, 4), humanize.FtoaWithDigits(s.MaxU, 4)))
	fmt.Println(table.Render())
}
