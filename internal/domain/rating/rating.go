// Package rating implements the Glicko-2 rating calculation as pure
// functions over immutable inputs: no clock, no storage, no goroutines.
//
// Variable names follow Professor Mark E. Glickman's paper:
//   - Mu: rating converted to the Glicko-2 internal scale.
//   - Phi: rating deviation on the internal scale.
//   - Sigma: rating volatility.
//   - Tau: constraint on volatility change per period.
//   - g: weighting that discounts opponents with uncertain ratings.
//   - E: expected score against a given opponent.
//   - v: estimated variance of the rating from game outcomes alone.
//
// See https://www.glicko.net/glicko/glicko2.pdf.
package rating

import "math"

// Canonical Glicko-2 constants. Deployments override them through Engine
// options driven by configuration.
const (
	DefaultBase          = 1500.0
	DefaultScale         = 173.7178
	DefaultTau           = 0.5
	DefaultTolerance     = 0.000001
	DefaultMaxIterations = 100
	DefaultMinDeviation  = 30.0
	DefaultMaxDeviation  = 350.0
	DefaultVolatility    = 0.06
)

// Scores achieved against an opponent.
const (
	ScoreWin  = 1.0
	ScoreLoss = 0.0
	ScoreDraw = 0.5
)

// Rating is a strength estimate on the external (display) scale.
type Rating struct {
	Mu    float64
	Phi   float64
	Sigma float64
}

// DefaultRating returns the canonical initial rating for an unseen
// competitor.
func DefaultRating() Rating {
	return Rating{Mu: DefaultBase, Phi: DefaultMaxDeviation, Sigma: DefaultVolatility}
}

// Opponent is one comparison seen from the rated competitor's side: the
// opponent's prior-period rating (external scale) and the score achieved
// against them.
type Opponent struct {
	Mu    float64
	Phi   float64
	Score float64
}

// Result is an updated rating plus solver diagnostics. Converged is false
// when the volatility solver hit its iteration cap; the rating then holds
// the last iterate and the caller decides how to surface the degradation.
type Result struct {
	Rating     Rating
	Iterations int
	Converged  bool
}

// Engine evaluates Glicko-2 updates under a fixed set of constants.
type Engine struct {
	base      float64
	scale     float64
	tau       float64
	tolerance float64
	maxIter   int
	minPhi    float64
	maxPhi    float64
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithScale sets the conversion between the external and internal scales.
func WithScale(base, scale float64) Option {
	return func(e *Engine) {
		if scale > 0 {
			e.base = base
			e.scale = scale
		}
	}
}

// WithTau sets the volatility change constraint. Smaller values keep
// volatility more stable across periods.
func WithTau(tau float64) Option {
	return func(e *Engine) {
		if tau > 0 {
			e.tau = tau
		}
	}
}

// WithTolerance sets the solver convergence tolerance.
func WithTolerance(tolerance float64) Option {
	return func(e *Engine) {
		if tolerance > 0 {
			e.tolerance = tolerance
		}
	}
}

// WithMaxIterations caps solver iterations so termination is guaranteed.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIter = n
		}
	}
}

// WithDeviationBounds clamps the external-scale deviation of every result
// to [minPhi, maxPhi].
func WithDeviationBounds(minPhi, maxPhi float64) Option {
	return func(e *Engine) {
		if minPhi > 0 && maxPhi > minPhi {
			e.minPhi = minPhi
			e.maxPhi = maxPhi
		}
	}
}

// New returns an Engine with canonical constants, adjusted by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		base:      DefaultBase,
		scale:     DefaultScale,
		tau:       DefaultTau,
		tolerance: DefaultTolerance,
		maxIter:   DefaultMaxIterations,
		minPhi:    DefaultMinDeviation,
		maxPhi:    DefaultMaxDeviation,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rate computes the post-period rating for a competitor from its prior
// rating and the period's comparisons. Opponent ratings must be
// prior-period snapshots; nothing here may observe another competitor's
// in-flight update, which is what makes a batch order-independent.
//
// With no opponents it degrades to Decay, matching the treatment of
// competitors who sat the period out.
func (e *Engine) Rate(cur Rating, opponents []Opponent) Result {
	if len(opponents) == 0 {
		return Result{Rating: e.Decay(cur), Converged: true}
	}

	mu := e.toInternalMu(cur.Mu)
	phi := e.toInternalPhi(cur.Phi)

	// Steps 2-3: estimated variance and rating improvement.
	var vInv, sum float64
	for _, o := range opponents {
		oMu := e.toInternalMu(o.Mu)
		oPhi := e.toInternalPhi(o.Phi)
		gj := g(oPhi)
		ej := expected(mu, oMu, gj)
		vInv += gj * gj * ej * (1 - ej)
		sum += gj * (o.Score - ej)
	}
	v := 1 / vInv
	delta := v * sum

	// Step 4: new volatility via the Illinois root finder.
	sigma, iterations, converged := e.solveVolatility(cur.Sigma, delta, phi, v)

	// Steps 5-7: fold the period's evidence into mu and phi.
	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	newPhi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	newMu := mu + newPhi*newPhi*sum

	return Result{
		Rating: Rating{
			Mu:    e.toExternalMu(newMu),
			Phi:   e.clampPhi(e.toExternalPhi(newPhi)),
			Sigma: sigma,
		},
		Iterations: iterations,
		Converged:  converged,
	}
}

// Decay returns the rating of a competitor that played no comparisons in
// the period: deviation grows toward the maximum, rating and volatility
// stay put. The growth happens on the internal scale, as in step 6 of the
// paper with an empty outcome set.
func (e *Engine) Decay(cur Rating) Rating {
	phi := e.toInternalPhi(cur.Phi)
	grown := math.Sqrt(phi*phi + cur.Sigma*cur.Sigma)
	return Rating{
		Mu:    cur.Mu,
		Phi:   e.clampPhi(e.toExternalPhi(grown)),
		Sigma: cur.Sigma,
	}
}

// solveVolatility finds sigma' as the root of the volatility function
// using the Illinois variant of regula falsi. It reports the iterate
// count and whether the bracket shrank below tolerance within the cap.
func (e *Engine) solveVolatility(sigma, delta, phi, v float64) (float64, int, bool) {
	a := math.Log(sigma * sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta*delta - phi*phi - v - ex)
		den := 2 * sq(phi*phi+v+ex)
		return num/den - (x-a)/(e.tau*e.tau)
	}

	iterations := 0

	// Initial bracket [A, B] around the root.
	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a-k*e.tau) < 0 {
			k++
			iterations++
			if iterations >= e.maxIter {
				return math.Exp((a - k*e.tau) / 2), iterations, false
			}
		}
		B = a - k*e.tau
	}

	fA := f(A)
	fB := f(B)
	for math.Abs(B-A) > e.tolerance {
		if iterations >= e.maxIter {
			return math.Exp(A / 2), iterations, false
		}
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if fC*fB <= 0 {
			A = B
			fA = fB
		} else {
			// Same side retained twice: halve its weight so the
			// bracket keeps contracting (the Illinois step).
			fA /= 2
		}
		B = C
		fB = fC
		iterations++
	}
	return math.Exp(A / 2), iterations, true
}

func (e *Engine) toInternalMu(mu float64) float64   { return (mu - e.base) / e.scale }
func (e *Engine) toExternalMu(mu float64) float64   { return mu*e.scale + e.base }
func (e *Engine) toInternalPhi(phi float64) float64 { return phi / e.scale }
func (e *Engine) toExternalPhi(phi float64) float64 { return phi * e.scale }

func (e *Engine) clampPhi(phi float64) float64 {
	return math.Min(math.Max(phi, e.minPhi), e.maxPhi)
}

// g discounts an opponent's influence by their rating uncertainty.
func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// expected is the expected score against an opponent at oMu weighted by gj.
func expected(mu, oMu, gj float64) float64 {
	return 1 / (1 + math.Exp(-gj*(mu-oMu)))
}

func sq(x float64) float64 { return x * x }
