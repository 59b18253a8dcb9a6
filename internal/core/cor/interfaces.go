// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor (Chain of Responsibility) provides the fundamental building blocks
// for creating workflows. This file declares the interfaces the pattern is
// built from: the indexing and rendering pipelines are assembled from
// Command values strung together by a Chain, sharing state through a
// Context. Keeping these as interfaces lets tests substitute small fakes
// for any piece of the engine.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the reserved keys that carry the primary data flow
// through a BaseChain.
const (
	// CtxIn is the default key a command reads its primary input from. The
	// BaseChain refreshes this key with the previous command's output
	// before each step.
	CtxIn = "__IN__"
	// CtxOut is the default key a command writes its primary output to.
	// The BaseChain relocates it to CtxIn for the next command.
	CtxOut = "__OUT__"
	// CtxGate is the key under which a workflow's control Gate is stored.
	// When present, the BaseChain consults the gate between commands so a
	// long chain can be paused or canceled at command boundaries.
	CtxGate = "__GATE__"
)

// Gate is a control point polled by a chain between commands. Wait blocks
// while the workflow is paused and returns an error when the workflow has
// been canceled or the Go context expired; a nil error means proceed.
type Gate interface {
	Wait(ctx context.Context) error
}

// Context is the shared state for one workflow execution. Commands read
// their inputs from it, write their results back to it, and record any
// errors against their own name.
type Context interface {
	// SetContext sets the standard Go context carrying cancellation and
	// request-scoped values such as trace information.
	SetContext(context context.Context)

	// GetContext retrieves the standard Go context.
	GetContext() context.Context

	// Add stores a key-value pair, returning the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error under the producing command's name.
	AddError(key string, err error)

	// GetErrors returns every error collected during the workflow.
	GetErrors() map[string]error

	// Get retrieves a stored value, or nil when the key is absent.
	Get(key string) interface{}

	// Remove deletes a key-value pair.
	Remove(key string)

	// HasErrors reports whether any command recorded an error.
	HasErrors() bool

	// AddTempFile registers a temporary file for removal on Close.
	AddTempFile(file string)

	// GetTempFiles returns the registered temporary file paths.
	GetTempFiles() []string

	// Close releases resources held by the context, removing any
	// registered temporary files. Defer it right after construction.
	Close()
}

// Executable is anything with a single execution entry point.
type Executable interface {
	// Execute runs the unit's logic against the shared context.
	Execute(context Context)
}

// Command is one atomic step of a pipeline: it declares where its input
// and output live in the context and carries its own telemetry handles.
type Command interface {
	Executable

	// GetName returns the command's unique name for logs and telemetry.
	GetName() string

	// GetInputParam returns the context key the command reads its
	// primary input from.
	GetInputParam() string

	// GetOutputParam returns the context key the command writes its
	// primary output to.
	GetOutputParam() string

	// IsExecutable reports whether the context holds everything the
	// command needs; the chain checks it before Execute.
	IsExecutable(context Context) bool

	// GetTracer returns the OpenTelemetry tracer for this command.
	GetTracer() trace.Tracer

	// GetMeter returns the OpenTelemetry meter for creating metrics.
	GetMeter() metric.Meter

	// GetSuccessCounter returns the counter incremented on success.
	GetSuccessCounter() metric.Int64Counter

	// GetErrorCounter returns the counter incremented on failure.
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands. A Chain is itself a Command,
// so pipelines can nest sub-chains as single steps.
type Chain interface {
	Command

	// ContinueOnFailure selects whether the chain keeps executing after
	// a command records an error. Pipelines here leave this off.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution sequence.
	AddCommand(command Command) Chain
}
