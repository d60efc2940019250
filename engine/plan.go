package engine

import (
	"time"

	"github.com/seetharamtessell/opsexec/errors"
)

// StrategyKind selects how plan members are scheduled.
type StrategyKind string

const (
	// StrategySerial runs members one at a time in order.
	StrategySerial StrategyKind = "serial"
	// StrategyParallel runs members concurrently, optionally capped.
	StrategyParallel StrategyKind = "parallel"
	// StrategyGraph runs members as soon as their dependencies complete.
	StrategyGraph StrategyKind = "graph"
)

// Strategy configures plan scheduling.
type Strategy struct {
	Kind StrategyKind `json:"kind" yaml:"kind"`

	// StopOnError aborts remaining serial members after a member fails,
	// times out, or is cancelled. Ignored by the other strategies.
	StopOnError bool `json:"stop_on_error,omitempty" yaml:"stop_on_error,omitempty"`

	// MaxConcurrency caps simultaneous parallel members. Zero means no
	// plan-level cap; the engine-wide admission gate still applies.
	MaxConcurrency int `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`

	// DependsOn maps a member index to the indexes it waits for. Only
	// used by the graph strategy. A member with no entry starts
	// immediately.
	DependsOn map[int][]int `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Plan is an ordered collection of execution requests scheduled under
// one strategy.
type Plan struct {
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Strategy    Strategy  `json:"strategy" yaml:"strategy"`
	Members     []Request `json:"members" yaml:"members"`
}

// Validate rejects malformed plans before any member record is created:
// every member must validate, and a graph strategy must reference only
// valid member indexes and contain no dependency cycle.
func (p *Plan) Validate(maxTimeout time.Duration) error {
	if len(p.Members) == 0 {
		return errors.NewValidationError("plan requires at least one member")
	}

	switch p.Strategy.Kind {
	case StrategySerial, StrategyParallel, StrategyGraph:
	default:
		return errors.NewValidationError("unknown plan strategy %q", p.Strategy.Kind)
	}

	for i := range p.Members {
		if err := p.Members[i].Validate(maxTimeout); err != nil {
			return errors.Wrapf(err, "plan member %d", i)
		}
	}

	if p.Strategy.MaxConcurrency < 0 {
		return errors.NewValidationError("max_concurrency must not be negative")
	}

	if p.Strategy.Kind == StrategyGraph {
		if err := p.checkGraph(); err != nil {
			return err
		}
	}
	return nil
}

// checkGraph verifies dependency indexes are in range and the graph is
// acyclic, by depth-first search with a three-color marking.
func (p *Plan) checkGraph() error {
	n := len(p.Members)
	for member, deps := range p.Strategy.DependsOn {
		if member < 0 || member >= n {
			return errors.NewValidationError("dependency entry references unknown member %d", member)
		}
		for _, d := range deps {
			if d < 0 || d >= n {
				return errors.NewValidationError("member %d depends on unknown member %d", member, d)
			}
			if d == member {
				return errors.NewValidationError("member %d depends on itself", member)
			}
		}
	}

	const (
		white = 0 // unvisited
		grey  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make([]int, n)

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = grey
		for _, d := range p.Strategy.DependsOn[i] {
			switch color[d] {
			case grey:
				return false
			case white:
				if !visit(d) {
					return false
				}
			}
		}
		color[i] = black
		return true
	}

	for i := 0; i < n; i++ {
		if color[i] == white && !visit(i) {
			return errors.NewValidationError("plan dependency graph contains a cycle")
		}
	}
	return nil
}

// predecessors returns the dependency list for a member, nil when it
// has none.
func (p *Plan) predecessors(i int) []int {
	if p.Strategy.Kind != StrategyGraph {
		return nil
	}
	return p.Strategy.DependsOn[i]
}
