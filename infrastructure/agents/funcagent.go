// Package agents provides adapters for building pipeline agents from
// plain functions, so callers and tests can define agents without
// declaring new types.
package agents

import (
	"context"

	"github.com/fairfound/agentcore/internal/domain"
	"github.com/fairfound/agentcore/internal/ports"
)

// ExecuteFunc is the function signature of an agent execution.
type ExecuteFunc func(ctx context.Context, ec *domain.ExecutionContext) (domain.Result, error)

// FuncAgent adapts a function to the Agent interface.
type FuncAgent struct {
	fn ExecuteFunc
}

// New creates an agent from an execution function.
func New(fn ExecuteFunc) *FuncAgent {
	return &FuncAgent{fn: fn}
}

// Execute implements the Agent interface.
func (a *FuncAgent) Execute(ctx context.Context, ec *domain.ExecutionContext) (domain.Result, error) {
	return a.fn(ctx, ec)
}

// FallbackFuncAgent adapts a pair of functions to the FallbackAgent
// interface. The fallback runs only after normal execution exhausts its
// retries. It is a distinct type so that agents without a degraded path
// never satisfy the FallbackAgent interface by accident.
type FallbackFuncAgent struct {
	FuncAgent
	fb ExecuteFunc
}

// NewWithFallback creates an agent with a degraded fallback path.
func NewWithFallback(fn, fb ExecuteFunc) *FallbackFuncAgent {
	return &FallbackFuncAgent{FuncAgent: FuncAgent{fn: fn}, fb: fb}
}

// Fallback implements the FallbackAgent interface.
func (a *FallbackFuncAgent) Fallback(ctx context.Context, ec *domain.ExecutionContext) (domain.Result, error) {
	return a.fb(ctx, ec)
}

// Compile-time interface checks.
var (
	_ ports.Agent         = (*FuncAgent)(nil)
	_ ports.FallbackAgent = (*FallbackFuncAgent)(nil)
)
