// Package behaviortree provides the small tree scheduler the motion loop
// is built from: composite nodes over leaves, ticked at a fixed rate.
package behaviortree

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/Ange-Michel/wholebody/logging"
)

// Status is a node's tick result.
type Status int

// Tick results.
const (
	Running Status = iota
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// Node is anything tickable.
type Node interface {
	Name() string
	Tick(ctx context.Context) Status
}

// Leaf wraps a function as a Node.
type Leaf struct {
	LeafName string
	Fn       func(ctx context.Context) Status
}

// NewLeaf returns a leaf node.
func NewLeaf(name string, fn func(ctx context.Context) Status) *Leaf {
	return &Leaf{LeafName: name, Fn: fn}
}

// Name implements Node.
func (l *Leaf) Name() string { return l.LeafName }

// Tick implements Node.
func (l *Leaf) Tick(ctx context.Context) Status { return l.Fn(ctx) }

// Sequence ticks children in order, stopping at the first that does not
// succeed. Children are re-ticked from the start every tick.
type Sequence struct {
	SeqName  string
	Children []Node
}

// NewSequence returns a sequence node.
func NewSequence(name string, children ...Node) *Sequence {
	return &Sequence{SeqName: name, Children: children}
}

// Name implements Node.
func (s *Sequence) Name() string { return s.SeqName }

// Tick implements Node.
func (s *Sequence) Tick(ctx context.Context) Status {
	for _, c := range s.Children {
		if st := c.Tick(ctx); st != Success {
			return st
		}
	}
	return Success
}

// Selector ticks children in order until one does not fail.
type Selector struct {
	SelName  string
	Children []Node
}

// NewSelector returns a selector node.
func NewSelector(name string, children ...Node) *Selector {
	return &Selector{SelName: name, Children: children}
}

// Name implements Node.
func (s *Selector) Name() string { return s.SelName }

// Tick implements Node.
func (s *Selector) Tick(ctx context.Context) Status {
	for _, c := range s.Children {
		if st := c.Tick(ctx); st != Failure {
			return st
		}
	}
	return Failure
}

// Parallel ticks its children in order each tick. The first failing child
// fails the node, and the children after it are not ticked that tick; it
// succeeds when all children succeed.
type Parallel struct {
	ParName  string
	Children []Node
}

// NewParallel returns a parallel node.
func NewParallel(name string, children ...Node) *Parallel {
	return &Parallel{ParName: name, Children: children}
}

// Name implements Node.
func (p *Parallel) Name() string { return p.ParName }

// Tick implements Node.
func (p *Parallel) Tick(ctx context.Context) Status {
	out := Success
	for _, c := range p.Children {
		switch c.Tick(ctx) {
		case Failure:
			return Failure
		case Running:
			out = Running
		}
	}
	return out
}

// Ticker drives a root node at a fixed rate until it stops running or the
// context ends.
type Ticker struct {
	logger logging.Logger
	clock  clock.Clock
	rate   time.Duration
}

// NewTicker returns a Ticker ticking at rateHz. A nil clk uses the wall
// clock; tests inject a mock.
func NewTicker(rateHz float64, clk clock.Clock, logger logging.Logger) *Ticker {
	if clk == nil {
		clk = clock.New()
	}
	return &Ticker{
		logger: logger,
		clock:  clk,
		rate:   time.Duration(float64(time.Second) / rateHz),
	}
}

// ErrTreeFailed is returned when the root reports failure.
var ErrTreeFailed = errors.New("behaviour tree failed")

// Run ticks root until it returns Success (nil), Failure (ErrTreeFailed),
// or the context ends. The current tick always runs to completion; a
// cancelled context is only observed between ticks.
func (t *Ticker) Run(ctx context.Context, root Node) error {
	timer := t.clock.Ticker(t.rate)
	defer timer.Stop()
	for {
		switch root.Tick(ctx) {
		case Success:
			return nil
		case Failure:
			return ErrTreeFailed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
