//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package sandbox runs short user-supplied script snippets inside a
// restricted ECMAScript interpreter with a hard wall-clock timeout.
//
// Every run uses a fresh interpreter runtime, so only the standard pure
// built-ins (Math, Date, JSON, String/Array/Object primitives and friends)
// are reachable from inside a snippet. No network, filesystem or host
// process access is exposed, and a run never mutates engine-owned state.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ErrTimeout indicates the snippet exceeded its wall-clock budget.
var ErrTimeout = errors.New("script execution timeout")

// ExecutionError carries the message of an error thrown inside a snippet.
type ExecutionError struct {
	Message string
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("script execution failed: %s", e.Message)
}

// Sandbox executes script snippets with a bounded time budget.
type Sandbox struct {
	timeout time.Duration
}

// New creates a sandbox. If no Option is provided, the default options are
// used.
func New(opt ...Option) *Sandbox {
	opts := newOptions(opt...)
	return &Sandbox{timeout: opts.Timeout}
}

// timeoutSignal is the interrupt value used to distinguish a deadline
// interrupt from a context cancellation.
type timeoutSignal struct{}

// Run compiles the snippet and invokes it with the given variables bound as
// globals. The snippet body may use `return` to produce a value; the exported
// Go value is returned.
//
// A snippet that overruns the budget fails with ErrTimeout, a thrown script
// error fails with *ExecutionError, and a syntax error fails with
// *ExecutionError before anything runs.
func (s *Sandbox) Run(ctx context.Context, code string, vars map[string]any) (any, error) {
	prog, err := compile(code)
	if err != nil {
		return nil, &ExecutionError{Message: err.Error()}
	}

	vm := goja.New()
	for name, value := range vars {
		if err := vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("bind %q: %w", name, err)
		}
	}

	timer := time.AfterFunc(s.timeout, func() {
		vm.Interrupt(timeoutSignal{})
	})
	defer timer.Stop()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-watchDone:
		}
	}()

	value, err := vm.RunProgram(prog)
	if err != nil {
		return nil, runError(ctx, err)
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}

// Validate reports whether the snippet compiles. It never invokes the code.
func (s *Sandbox) Validate(code string) bool {
	_, err := compile(code)
	return err == nil
}

// compile wraps the snippet into a function body so that bare `return`
// statements are legal, then compiles it.
func compile(code string) (*goja.Program, error) {
	return goja.Compile("snippet.js", "(function() {\n"+code+"\n})()", false)
}

// runError maps interpreter failures onto the sandbox error taxonomy.
func runError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if _, ok := interrupted.Value().(timeoutSignal); ok {
			return ErrTimeout
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTimeout
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ExecutionError{Message: exception.Value().String()}
	}
	return &ExecutionError{Message: err.Error()}
}
