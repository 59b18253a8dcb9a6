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

// This file defines the command that persists the resolved edit as
// edl.json. The write is atomic (temp file plus rename) so a crashed
// render never leaves a half-written edit behind.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
)

// EdlFileName is the edit decision list inside the render output
// directory.
const EdlFileName = "edl.json"

// EdlWriter is a command that writes the edit decision list.
type EdlWriter struct {
	cor.BaseCommand
	outputFps int
}

// NewEdlWriter is the constructor for the EdlWriter command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - outputFps: The frame rate recorded in the edit.
//
// Outputs:
//   - *EdlWriter: A pointer to the newly instantiated command.
func NewEdlWriter(name string, outputFps int) *EdlWriter {
	return &EdlWriter{BaseCommand: *cor.NewBaseCommand(name), outputFps: outputFps}
}

// IsExecutable additionally requires the unit timings and the scheduled
// segments.
func (c *EdlWriter) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetRenderRequestParamName()) != nil &&
		context.Get(GetUnitTimingsParamName()) != nil &&
		context.Get(GetVoiceDurParamName()) != nil &&
		context.Get(GetSegmentsParamName()) != nil
}

// Execute assembles the edit decision list and writes it atomically.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *EdlWriter) Execute(context cor.Context) {
	req := context.Get(GetRenderRequestParamName()).(*model.RenderRequest)
	timings := context.Get(GetUnitTimingsParamName()).([]model.UnitTiming)
	voiceDur := context.Get(GetVoiceDurParamName()).(float64)
	segments := context.Get(GetSegmentsParamName()).([]model.TimelineSegment)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	// The scheduler is guaranteed one segment per unit; a mismatch here
	// means an upstream command rewired the context incorrectly.
	if len(segments) != len(timings) {
		context.AddError(c.GetName(), fmt.Errorf("segment count (%d) does not match unit count (%d)", len(segments), len(timings)))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	edl := &model.EditDecisionList{
		CreatedAt: time.Now().Format(time.RFC3339),
		Fps:       c.outputFps,
		VoiceDur:  voiceDur,
		Units:     timings,
		Segments:  segments,
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		context.AddError(c.GetName(), fmt.Errorf("create output directory: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	data, err := json.MarshalIndent(edl, "", "  ")
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("marshal edit decision list: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	outPath := filepath.Join(req.OutDir, EdlFileName)
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		context.AddError(c.GetName(), fmt.Errorf("write edit decision list: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		context.AddError(c.GetName(), fmt.Errorf("finalize edit decision list: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	reporter.Log(fmt.Sprintf("edit ready: %d units, %.2fs, %s", len(timings), voiceDur, outPath))
	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(cor.CtxOut, edl)
}
