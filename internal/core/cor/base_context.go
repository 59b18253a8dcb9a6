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
// for creating workflows. This file defines `BaseContext`, the default
// implementation of the `Context` interface.
//
// The `Context` is the shared property bag passed through the entire chain
// of commands: each command reads its inputs from the context, does its work,
// and writes results back for the commands that follow. Several commands in
// this codebase fan work out to goroutine pools (frame extraction,
// captioning), so the error map is guarded by a mutex — workers report
// failures through AddError without the command having to funnel them back
// to a single goroutine first.
//
// This implementation includes:
//   - A map holding arbitrary data (`data`).
//   - A mutex-guarded map collecting errors from any command or worker
//     (`errors`).
//   - A slice tracking temporary files (extracted frames, intermediate
//     transcodes) so Close can remove them when the workflow ends.
//   - A standard Go `context.Context` carrying cancellation and
//     request-scoped values such as OpenTelemetry spans.
package cor

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// BaseContext is the default implementation of the Context interface. It holds
// the shared state for a single workflow execution.
type BaseContext struct {
	data      map[string]interface{} // Arbitrary key-value data shared between commands.
	errMu     sync.Mutex             // Guards errors; workers in pooled commands report concurrently.
	errors    map[string]error       // Errors keyed by the command (or worker) name that produced them.
	tempFiles []string               // Paths of temporary files to remove on Close.
	context   context.Context        // Go context for cancellation and request-scoped values.
}

// NewBaseContext is the constructor for BaseContext.
// It initializes all the internal maps and slices so the context is ready for use.
//
// Outputs:
//   - Context: A new, empty context object.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
	}
}

// SetContext sets the underlying standard Go context. The workflow runner
// sets this once before execution; the chain then layers OpenTelemetry
// spans on top of it per command.
//
// Inputs:
//   - context: The standard `context.Context` to set.
func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

// GetContext retrieves the underlying standard Go context.
//
// Outputs:
//   - context.Context: The currently set Go context.
func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close removes the temporary files tracked during the workflow. Proxy
// videos and the index artifact are cache, not temp files, and are never
// registered here.
func (c *BaseContext) Close() {
	for _, file := range c.GetTempFiles() {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove temporary file", "file", file, "error", err)
		}
	}
}

// Add stores a key-value pair in the context's data map.
//
// Inputs:
//   - key: The string key to store the data under.
//   - value: The data (of any type) to store.
//
// Outputs:
//   - Context: The context instance, allowing for fluent method chaining.
func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

// AddTempFile adds a file path to the list of temporary files that need cleanup.
//
// Inputs:
//   - file: The string path to the temporary file.
func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

// GetTempFiles returns the slice of all tracked temporary file paths.
//
// Outputs:
//   - []string: A slice of file paths.
func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

// AddError records an error under the given command or worker name. Safe
// to call from multiple goroutines.
//
// Inputs:
//   - key: The name of the command (or worker) that generated the error.
//   - err: The error object.
func (c *BaseContext) AddError(key string, err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.errors[key] = err
}

// GetErrors returns the map of all errors collected during the workflow.
// Callers read it after the chain has finished, so no copy is taken.
//
// Outputs:
//   - map[string]error: A map where keys are command names and values are the errors.
func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

// Get retrieves a value from the context's data map by its key.
//
// Inputs:
//   - key: The string key of the data to retrieve.
//
// Outputs:
//   - interface{}: The stored value, or `nil` if the key does not exist.
func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

// Remove deletes a key-value pair from the context's data map.
//
// Inputs:
//   - key: The key of the item to remove.
func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

// HasErrors reports whether any command has recorded an error.
//
// Outputs:
//   - bool: True if the error map is not empty, false otherwise.
func (c *BaseContext) HasErrors() bool {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return len(c.errors) > 0
}
