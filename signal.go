package vquant

import (
	"context"
	"fmt"
	"math"

	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/storage"
	"github.com/edges-ai/vquant/technical"
)

// Signal is a binary research signal evaluated over a set of factors. The
// condition receives the ticker's aligned factor series and returns a series
// of 1 (on), 0 (off) and NaN (undecidable) cells.
type Signal struct {
	name      string
	factors   []Factor
	condition ComputeFunc
}

// NewSignal builds a signal over the given factors.
func NewSignal(name string, factors []Factor, condition ComputeFunc) (*Signal, error) {
	if !storage.IsIdent(name) {
		return nil, fmt.Errorf("invalid signal name %q", name)
	}
	if len(factors) == 0 {
		return nil, fmt.Errorf("signal %s: no factors", name)
	}
	for i, f := range factors {
		if f == nil {
			return nil, fmt.Errorf("signal %s: nil factor at %d", name, i)
		}
		if v, ok := f.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("signal %s: factor %d: %w", name, i, err)
			}
		}
	}
	if condition == nil {
		return nil, fmt.Errorf("signal %s: nil condition", name)
	}

	return &Signal{name: name, factors: factors, condition: condition}, nil
}

// Name returns the bare signal name.
func (s *Signal) Name() string {
	return s.name
}

// FullName returns the qualified "signal.<name>" column label.
func (s *Signal) FullName() string {
	return SignalCategory + "." + s.name
}

// Factors returns the full names of the factors the signal evaluates.
func (s *Signal) Factors() []string {
	out := make([]string, len(s.factors))
	for i, f := range s.factors {
		out[i] = f.FullName()
	}
	return out
}

// Evaluate fetches the signal's factors for one ticker, aligns them and
// applies the condition.
func (s *Signal) Evaluate(ctx context.Context, c *Client, ticker string) (*frame.Series, error) {
	deps, err := fetchAligned(ctx, c, ticker, s.factors)
	if err != nil {
		return nil, fmt.Errorf("signal %s for %s: %w", s.name, ticker, err)
	}

	out, err := s.condition(deps)
	if err != nil {
		return nil, fmt.Errorf("signal %s for %s: %w", s.name, ticker, err)
	}
	if out == nil {
		return nil, fmt.Errorf("signal %s for %s: condition returned no series", s.name, ticker)
	}
	return out, nil
}

// Threshold returns a condition comparing one factor against a level:
// op is one of "gt", "lt", "ge", "le", "cross_above" or "cross_below".
// The returned condition reads the factor by its full name.
func Threshold(factor Factor, op string, level float64) (ComputeFunc, error) {
	full := factor.FullName()

	var apply func([]float64) []float64
	switch op {
	case "gt":
		apply = compareEach(func(v float64) bool { return v > level })
	case "lt":
		apply = compareEach(func(v float64) bool { return v < level })
	case "ge":
		apply = compareEach(func(v float64) bool { return v >= level })
	case "le":
		apply = compareEach(func(v float64) bool { return v <= level })
	case "cross_above":
		apply = func(values []float64) []float64 { return technical.CrossAbove(values, level) }
	case "cross_below":
		apply = func(values []float64) []float64 { return technical.CrossBelow(values, level) }
	default:
		return nil, fmt.Errorf("unknown threshold op %q", op)
	}

	return func(deps map[string]*frame.Series) (*frame.Series, error) {
		s, ok := deps[full]
		if !ok {
			return nil, fmt.Errorf("condition input %s missing", full)
		}
		return s.Apply(apply)
	}, nil
}

// compareEach lifts a scalar predicate to a 0/1 series transform, keeping
// NaN cells NaN.
func compareEach(pred func(float64) bool) func([]float64) []float64 {
	return func(values []float64) []float64 {
		out := make([]float64, len(values))
		for i, v := range values {
			switch {
			case math.IsNaN(v):
				out[i] = math.NaN()
			case pred(v):
				out[i] = 1
			default:
				out[i] = 0
			}
		}
		return out
	}
}
