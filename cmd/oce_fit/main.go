// oce_fit trains the OCE intercept y of a short call position, on a synthetic market, and reports the fitted
// objective.
//
// The intercept y is a network of the volatility observed at time 0 (feature "vol"), or a plain scalar if the
// "features" hyperparameter is set to an empty string. All hyperparameters can be set with -set, for instance:
//
//	$ oce_fit -set="utility=cvar;lmbda=1;train_steps=5000" -checkpoint=~/tmp/oce_cvar
package main

import (
	"flag"

	"github.com/gomlx/deephedging/pkg/ml/layers/featurenet"
	"github.com/gomlx/deephedging/pkg/ml/objectives/oce"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagCheckpoint = flag.String("checkpoint", "", "Directory save and load checkpoints from. If left empty, no checkpoints are created.")
	flagVerbosity  = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

// createDefaultContext sets the context with default hyperparameters to use with trainModel.
func createDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		"train_steps":     2000,
		"num_checkpoints": 3,
		"batch_size":      512,

		// Synthetic market.
		"num_samples": 16_384,
		"seed":        42,
		"min_vol":     0.1,
		"max_vol":     0.4,
		"strike":      1.0,
		"maturity":    1.0,
		"hedge":       true,
		"cost_rate":   0.0005,

		// Objective.
		oce.ParamUtility:       oce.DefaultUtility.String(),
		oce.ParamLambda:        oce.DefaultLambda,
		oce.ParamCheckNumerics: true,
		oce.ParamFeatures:      FeatureVol,

		// Intercept y network.
		featurenet.ParamWidth:           20,
		featurenet.ParamDepth:           3,
		featurenet.ParamActivation:      "relu",
		featurenet.ParamFinalActivation: "linear",

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 0.01,
	})
	return ctx
}

func main() {
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	err := exceptions.TryCatch[error](func() {
		trainModel(ctx, *flagCheckpoint, paramsSet, *flagVerbosity)
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}
