// oce_curves prints and plots the OCE utilities u(x+y)-y and their derivatives d over a range of gains x.
//
// Example:
//
//	$ oce_curves -utilities=exp2,vicky,cvar -lambda=2 -plot=/tmp/oce
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/deephedging/internal/tables"
	"github.com/gomlx/deephedging/pkg/ml/objectives/oce"
	"github.com/gomlx/gomlx/backends"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagUtilities = flag.String("utilities", "all",
		fmt.Sprintf("Comma-separated list of utilities to evaluate, from %q, or \"all\".", oce.UtilityStrings()))
	flagLambda = flag.Float64("lambda", oce.DefaultLambda, "Risk aversion lambda.")
	flagY      = flag.Float64("y", 0, "Intercept y, added to the gains and subtracted from the utility (except for mean).")
	flagFrom   = flag.Float64("from", -5, "First value of the gains x.")
	flagTo     = flag.Float64("to", 5, "Last value of the gains x.")
	flagPoints = flag.Int("points", 201, "Number of points evaluated in the range [from, to].")
	flagRows   = flag.Int("rows", 21, "Number of rows of the printed table, sampled evenly from the points evaluated. "+
		"Set to 0 to skip the table.")
	flagPlot = flag.String("plot", "", "If set, the prefix of PNG files where to plot u and d: <plot>_u.png and <plot>_d.png.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *flagLambda < 0 {
		klog.Errorf("-lambda must be >= 0, got %g", *flagLambda)
		os.Exit(1)
	}
	if *flagPoints < 2 || *flagTo <= *flagFrom {
		klog.Errorf("Invalid range: -points=%d must be >= 2 and -to=%g must be > -from=%g", *flagPoints, *flagTo, *flagFrom)
		os.Exit(1)
	}
	utilities, err := parseUtilities(*flagUtilities)
	if err != nil {
		klog.Errorf("Invalid -utilities: %v", err)
		os.Exit(1)
	}
	if *flagLambda < oce.MinLambda {
		klog.Warningf("-lambda=%g is below %g: all utilities are evaluated as %q", *flagLambda, oce.MinLambda,
			oce.UtilityMean)
	}

	backend := backends.MustNew()
	klog.V(1).Infof("Backend: %s", backend.Name())
	grid := linspace(*flagFrom, *flagTo, *flagPoints)
	curves := must.M1(computeCurves(backend, utilities, *flagLambda, *flagY, grid))

	fmt.Println(tables.TitleStyle.Render(fmt.Sprintf("%s points in [%g, %g], lambda=%g, y=%g",
		humanize.Comma(int64(len(grid))), *flagFrom, *flagTo, *flagLambda, *flagY)))
	if *flagRows > 0 {
		printTable(curves, sampleIndices(len(grid), *flagRows))
	}
	if *flagPlot != "" {
		paths := must.M1(savePlots(*flagPlot, *flagLambda, curves))
		for _, path := range paths {
			fmt.Printf("Plot saved to %q\n", path)
		}
	}
}

// printTable prints x and, for each utility, u and d at the given indices of the grid.
func printTable(curves []curve, indices []int) {
	headers := []string{"x"}
	for _, c := range curves {
		headers = append(headers, "u:"+c.utility.String(), "d:"+c.utility.String())
	}
	table := tables.New(lipgloss.Right).Headers(headers...)
	for _, idx := range indices {
		row := []string{humanize.FtoaWithDigits(curves[0].x[idx], 4)}
		for _, c := range curves {
			row = append(row, humanize.CommafWithDigits(c.u[idx], 4), humanize.CommafWithDigits(c.d[idx], 4))
		}
		table.Row(row...)
	}
	fmt.Println(table.Render())
}
