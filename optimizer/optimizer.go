package optimizer

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/sky-flux/ebb"
)

var (
	// ErrEmptyLogs is returned when no review events are provided.
	ErrEmptyLogs = errors.New("optimizer: no review events provided")

	// ErrInsufficientData is returned when cross-day reviews are fewer than MiniBatchSize.
	ErrInsufficientData = errors.New("optimizer: insufficient cross-day reviews for optimization")
)

// OptimizerConfig configures the training process.
// Zero values are replaced with sensible defaults.
type OptimizerConfig struct {
	Epochs        int     `json:"epochs"`          // default 5
	MiniBatchSize int     `json:"mini_batch_size"` // default 64
	LearningRate  float64 `json:"learning_rate"`   // default 0.01
	MaxSeqLen     int     `json:"max_seq_len"`     // default 64

	// Logger receives per-epoch progress at debug level. Nil disables it.
	Logger *zerolog.Logger `json:"-"`
}

// Optimizer fits ebb parameters from review events using mini-batch
// gradient descent with Adam and cosine annealing learning rate.
type Optimizer struct {
	epochs        int
	miniBatchSize int
	learningRate  float64
	maxSeqLen     int
	log           zerolog.Logger
}

// NewOptimizer creates an Optimizer with the given config.
// Zero-valued fields receive defaults: Epochs=5, MiniBatchSize=64,
// LearningRate=0.01, MaxSeqLen=64.
func NewOptimizer(cfg OptimizerConfig) *Optimizer {
	o := &Optimizer{
		epochs:        cfg.Epochs,
		miniBatchSize: cfg.MiniBatchSize,
		learningRate:  cfg.LearningRate,
		maxSeqLen:     cfg.MaxSeqLen,
		log:           zerolog.Nop(),
	}
	if o.epochs == 0 {
		o.epochs = 5
	}
	if o.miniBatchSize == 0 {
		o.miniBatchSize = 64
	}
	if o.learningRate == 0 {
		o.learningRate = 0.01
	}
	if o.maxSeqLen == 0 {
		o.maxSeqLen = 64
	}
	if cfg.Logger != nil {
		o.log = cfg.Logger.With().Str("component", "optimizer").Logger()
	}
	return o
}

// Fit returns base with DecayRate and ReviewBoost refitted to events. All
// other fields of base are carried through unchanged. A zero base means
// [ebb.DefaultParams].
//
// Returns ErrEmptyLogs if events is empty, or ErrInsufficientData (along with
// base) if cross-day reviews are fewer than MiniBatchSize. The context can be
// used to cancel long-running optimization; the best parameters found so far
// are returned with the context error.
func (o *Optimizer) Fit(ctx context.Context, base ebb.Params, events []ebb.ReviewEvent) (ebb.Params, error) {
	if base == (ebb.Params{}) {
		base = ebb.DefaultParams
	}
	if err := base.Validate(); err != nil {
		return base, err
	}
	if len(events) == 0 {
		return base, ErrEmptyLogs
	}

	data := formatEvents(events)

	// Truncate each topic's reviews to maxSeqLen.
	for topicID, reviews := range data {
		if len(reviews) > o.maxSeqLen {
			data[topicID] = reviews[:o.maxSeqLen]
		}
	}

	numReviews := countCrossDayReviews(data)
	if numReviews < o.miniBatchSize {
		return base, ErrInsufficientData
	}

	params := clampVector(toVector(base))
	tMax := int(math.Ceil(float64(numReviews)/float64(o.miniBatchSize))) * o.epochs
	adam := NewAdam(o.learningRate)
	rng := rand.New(rand.NewSource(42))

	// Sorted topic IDs for deterministic shuffle.
	ids := topicIDs(data)

	bestParams := params
	bestLoss, err := computeBatchLoss(base, params, data)
	if err != nil {
		return base, err
	}
	o.log.Debug().
		Int("cross_day_reviews", numReviews).
		Float64("loss", bestLoss).
		Msg("fit started")

	steps := 0
	step := func(batch map[string][]review) error {
		grad, err := numericalGradient(base, params, batch)
		if err != nil {
			return err
		}
		adam.SetLR(cosineLR(o.learningRate, steps, tMax))
		params = adam.Step(params, grad)
		steps++
		return nil
	}

	for epoch := 0; epoch < o.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return fromVector(base, bestParams), err
		}

		rng.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})

		batchData := make(map[string][]review)
		crossDayCount := 0

		for _, topicID := range ids {
			reviews := data[topicID]
			batchData[topicID] = reviews

			for _, r := range reviews {
				if r.elapsedDays >= 1.0 {
					crossDayCount++
				}
			}

			if crossDayCount >= o.miniBatchSize {
				if err := step(batchData); err != nil {
					return fromVector(base, bestParams), err
				}
				batchData = make(map[string][]review)
				crossDayCount = 0
			}
		}

		// Handle remaining reviews at end of epoch.
		if crossDayCount > 0 {
			if err := step(batchData); err != nil {
				return fromVector(base, bestParams), err
			}
		}

		// Track best parameters by epoch loss.
		epochLoss, err := computeBatchLoss(base, params, data)
		if err != nil {
			return fromVector(base, bestParams), err
		}
		if epochLoss < bestLoss {
			bestLoss = epochLoss
			bestParams = params
		}
		o.log.Debug().
			Int("epoch", epoch+1).
			Float64("loss", epochLoss).
			Float64("decay_rate", params[idxDecayRate]).
			Float64("review_boost", params[idxReviewBoost]).
			Msg("epoch finished")
	}

	return fromVector(base, bestParams), nil
}

// Loss computes the average BCE loss of params over all cross-day reviews
// in events. This is a convenience wrapper that preprocesses the events.
// Invalid params return the validation error.
func (o *Optimizer) Loss(params ebb.Params, events []ebb.ReviewEvent) (float64, error) {
	data := formatEvents(events)
	return computeBatchLoss(params, toVector(params), data)
}
