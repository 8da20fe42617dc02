// Package optimizer calibrates the global ebb parameters from a review
// ledger.
//
// [Optimizer.Fit] adjusts DecayRate and ReviewBoost so that the strength the
// model predicts just before each cross-day review matches the score the
// learner actually achieved. It replays the ledger through a candidate
// [ebb.Scheduler], scores predictions with binary cross-entropy against the
// performance score used as a soft label, and descends the loss with
// mini-batch [Adam] under a cosine-annealed learning rate. Each step is
// projected back into [LowerBounds, UpperBounds]. Gradients are numerical
// differences, one-sided at a bound.
//
// # Usage
//
//	opt := optimizer.NewOptimizer(optimizer.OptimizerConfig{})
//	params, err := opt.Fit(ctx, s.Params(), s.AllEvents())
//	if err == nil {
//	    err = s.SetParams(params)
//	}
//
// # Data Requirements
//
// Fitting requires at least MiniBatchSize cross-day reviews (default 64).
package optimizer
