// Package inference invokes models on the decentralized compute network.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainscribe/chainscribe/pkg/models"
)

// ErrInvocationFailed matches every invocation failure.
var ErrInvocationFailed = errors.New("ai invocation failed")

// Invoker runs a prompt against a model.
type Invoker interface {
	Invoke(ctx context.Context, req models.InvocationRequest) (models.InvocationResult, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req models.InvocationRequest) (models.InvocationResult, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, req models.InvocationRequest) (models.InvocationResult, error) {
	return f(ctx, req)
}

// InvocationError describes a failed invocation against a provider.
type InvocationError struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("invoke %s via %s", e.Model, e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvocationFailed.
func (e *InvocationError) Is(target error) bool {
	return target == ErrInvocationFailed
}
