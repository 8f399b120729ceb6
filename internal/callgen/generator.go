package callgen

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Submitter accepts generated calls
type Submitter interface {
	SubmitCall(ctx context.Context, tier types.Tier) (Accepted, error)
}

// Weights is the relative share of calls per required tier, lowest first
type Weights [types.NumTiers]float64

// DefaultWeights sends most callers to respondents
var DefaultWeights = Weights{6, 3, 1}

// pausePoll is how often a paused generator checks for a new rate
const pausePoll = 200 * time.Millisecond

// Status describes a generator
type Status struct {
	Running   bool       `json:"running"`
	Rate      float64    `json:"rate"` // calls per second
	Weights   Weights    `json:"weights"`
	Submitted int        `json:"submitted"`
	Failed    int        `json:"failed"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Generator submits calls at a configurable rate with weighted random
// required tiers
type Generator struct {
	client  Submitter
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu        sync.Mutex
	rate      float64
	weights   Weights
	rng       *rand.Rand
	running   bool
	startedAt time.Time
	submitted int
	failed    int
}

// NewGenerator creates a Generator producing callsPerSec calls per second
func NewGenerator(client Submitter, callsPerSec float64, logger zerolog.Logger) (*Generator, error) {
	if callsPerSec < 0 {
		return nil, fmt.Errorf("rate must not be negative, got %v", callsPerSec)
	}
	return &Generator{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(callsPerSec), 1),
		logger:  logger,
		rate:    callsPerSec,
		weights: DefaultWeights,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SetRate changes the call rate; 0 pauses generation
func (g *Generator) SetRate(callsPerSec float64) error {
	if callsPerSec < 0 {
		return fmt.Errorf("rate must not be negative, got %v", callsPerSec)
	}
	g.mu.Lock()
	g.rate = callsPerSec
	g.mu.Unlock()
	g.limiter.SetLimit(rate.Limit(callsPerSec))
	g.logger.Info().Float64("rate", callsPerSec).Msg("call rate changed")
	return nil
}

// SetWeights changes the tier mix. At least one weight must be positive.
func (g *Generator) SetWeights(w Weights) error {
	var total float64
	for _, v := range w {
		if v < 0 {
			return fmt.Errorf("weights must not be negative: %v", w)
		}
		total += v
	}
	if total == 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	g.mu.Lock()
	g.weights = w
	g.mu.Unlock()
	return nil
}

// Status returns the current settings and counters
func (g *Generator) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Status{
		Running:   g.running,
		Rate:      g.rate,
		Weights:   g.weights,
		Submitted: g.submitted,
		Failed:    g.failed,
	}
	if g.running {
		started := g.startedAt
		s.StartedAt = &started
	}
	return s
}

// Run submits calls until ctx is done
func (g *Generator) Run(ctx context.Context) {
	g.mu.Lock()
	g.running = true
	g.startedAt = time.Now()
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
	}()

	g.logger.Info().Float64("rate", g.Status().Rate).Msg("call generator started")

	for {
		if g.Status().Rate <= 0 {
			select {
			case <-ctx.Done():
				g.logger.Info().Msg("call generator stopped")
				return
			case <-time.After(pausePoll):
				continue
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				g.logger.Info().Msg("call generator stopped")
				return
			}
			// The rate dropped to zero while waiting
			continue
		}

		g.submitOne(ctx, g.pickTier())
	}
}

// Inject submits count calls immediately, ignoring the rate. A nil tier
// picks one at random for each call.
func (g *Generator) Inject(ctx context.Context, count int, tier *types.Tier) (injected int) {
	for i := 0; i < count; i++ {
		t := g.pickTier()
		if tier != nil {
			t = *tier
		}
		if g.submitOne(ctx, t) {
			injected++
		}
	}
	return injected
}

func (g *Generator) submitOne(ctx context.Context, tier types.Tier) bool {
	accepted, err := g.client.SubmitCall(ctx, tier)

	g.mu.Lock()
	if err != nil {
		g.failed++
	} else {
		g.submitted++
	}
	g.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			g.logger.Error().Err(err).Str("tier", tier.String()).Msg("failed to submit call")
		}
		return false
	}
	g.logger.Debug().
		Str("call_id", accepted.CallID).
		Str("tier", tier.String()).
		Str("status", string(accepted.Status)).
		Msg("submitted call")
	return true
}

// pickTier selects a tier based on the configured weights
func (g *Generator) pickTier() types.Tier {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pickTier(g.rng, g.weights)
}

func pickTier(rng *rand.Rand, w Weights) types.Tier {
	var total float64
	for _, v := range w {
		total += v
	}

	r := rng.Float64() * total
	for i, v := range w {
		if v <= 0 {
			continue
		}
		r -= v
		if r < 0 {
			return types.Tier(i)
		}
	}
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] > 0 {
			return types.Tier(i)
		}
	}
	return types.TierRespondent
}
