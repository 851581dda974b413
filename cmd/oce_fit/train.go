package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/deephedging/pkg/ml/objectives/oce"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

// ParamsExcludedFromLoading is the list of parameters (see createDefaultContext) that shouldn't be saved
// along on the checkpoints, and may be overwritten in further training sessions.
var ParamsExcludedFromLoading = []string{"train_steps", "num_checkpoints"}

// marketFromContext reads the synthetic market configuration from the hyperparameters.
func marketFromContext(ctx *context.Context) marketConfig {
	return marketConfig{
		NumSamples: context.GetParamOr(ctx, "num_samples", 16_384),
		Seed:       int64(context.GetParamOr(ctx, "seed", 42)),
		MinVol:     context.GetParamOr(ctx, "min_vol", 0.1),
		MaxVol:     context.GetParamOr(ctx, "max_vol", 0.4),
		Strike:     context.GetParamOr(ctx, "strike", 1.0),
		Maturity:   context.GetParamOr(ctx, "maturity", 1.0),
		Hedge:      context.GetParamOr(ctx, "hedge", true),
		CostRate:   context.GetParamOr(ctx, "cost_rate", 0.0005),
	}
}

// trainModel with hyperparameters given in ctx. It panics on errors.
func trainModel(ctx *context.Context, checkpointPath string, paramsSet []string, verbosity int) {
	backend := backends.MustNew()
	if verbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}

	// Checkpoints loading (if it exists) and saving.
	var checkpoint *checkpoints.Handler
	if checkpointPath != "" {
		numCheckpointsToKeep := context.GetParamOr(ctx, "num_checkpoints", 3)
		checkpoint = must.M1(checkpoints.Build(ctx).
			Dir(checkpointPath).
			Keep(numCheckpointsToKeep).
			ExcludeParams(append(paramsSet, ParamsExcludedFromLoading...)...).
			Done())
		fmt.Printf("Checkpoint: %q\n", checkpoint.Dir())
	}
	if verbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	objective := must.M1(oce.New(ctx))
	cfg := marketFromContext(ctx)
	m := must.M1(generateMarket(cfg))
	klog.V(1).Infof("Generated %s samples of the market, hedge=%v", humanize.Comma(int64(cfg.NumSamples)), cfg.Hedge)

	batchSize := context.GetParamOr(ctx, "batch_size", 512)
	if batchSize <= 0 {
		exceptions.Panicf("\"batch_size\" must be > 0, got %d", batchSize)
	}
	trainDS := must.M1(datasets.InMemoryFromData(backend, "market",
		[]any{m.Payoff, m.PnL, m.Cost, m.Vol},
		[]any{make([]float32, cfg.NumSamples)}))
	trainDS.WithRand(rand.New(rand.NewSource(cfg.Seed))).Shuffle().Infinite(true).BatchSize(batchSize, true)

	modelFn := func(ctx *context.Context, _ any, inputs []*Node) []*Node {
		var featuresTime0 map[string]*Node
		if len(objective.Features()) > 0 {
			featuresTime0 = map[string]*Node{FeatureVol: inputs[3]}
		}
		return []*Node{objective.Call(oce.Data{
			FeaturesTime0: featuresTime0,
			Payoff:        inputs[0],
			PnL:           inputs[1],
			Cost:          inputs[2],
		})}
	}
	lossFn := func(_, predictions []*Node) *Node {
		return Neg(ReduceAllMean(predictions[0]))
	}
	trainer := train.NewTrainer(backend, ctx, modelFn, lossFn, optimizers.FromContext(ctx), nil, nil)
	objective.AttachToTrainer(trainer)

	loop := train.NewLoop(trainer)
	if verbosity >= 0 {
		commandline.AttachProgressBar(loop)
	}
	if checkpoint != nil {
		train.PeriodicCallback(loop, time.Minute, true, "saving checkpoint", 100,
			func(loop *train.Loop, metrics []*tensors.Tensor) error {
				return checkpoint.Save()
			})
	}

	numTrainSteps := context.GetParamOr(ctx, "train_steps", 0)
	globalStep := int(optimizers.GetGlobalStep(ctx))
	if globalStep < numTrainSteps {
		_ = must.M1(loop.RunSteps(trainDS, numTrainSteps-globalStep))
		if verbosity >= 1 {
			fmt.Printf("\t[Step %d] median train step: %d microseconds\n",
				loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())
		}
	} else {
		fmt.Printf("\t - target train_steps=%d already reached. To train further, set a number additional "+
			"to current global step.\n", numTrainSteps)
	}

	report(backend, ctx, objective, m)
}
