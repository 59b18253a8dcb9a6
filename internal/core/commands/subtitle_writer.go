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

// This file defines the command that emits the ASS subtitle track from
// the frame-snapped unit timings.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/subtitles"
)

// SubtitleFileName is the subtitle track inside the render output
// directory.
const SubtitleFileName = "subtitles.ass"

// SubtitleWriter is a command that writes the styled subtitle track.
type SubtitleWriter struct {
	cor.BaseCommand
	style subtitles.Style
}

// NewSubtitleWriter is the constructor for the SubtitleWriter command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - style: The resolved subtitle rendering style.
//
// Outputs:
//   - *SubtitleWriter: A pointer to the newly instantiated command.
func NewSubtitleWriter(name string, style subtitles.Style) *SubtitleWriter {
	return &SubtitleWriter{BaseCommand: *cor.NewBaseCommand(name), style: style}
}

// IsExecutable additionally requires the unit timings and the parsed
// narration units (for the emphasis phrases).
func (c *SubtitleWriter) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetRenderRequestParamName()) != nil &&
		context.Get(GetUnitTimingsParamName()) != nil &&
		context.Get(GetUnitsParamName()) != nil
}

// Execute writes subtitles.ass next to the edit decision list. Units
// whose display text is empty (pause markers, pure-tag lines) produce
// no event but keep their slot on the clock.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *SubtitleWriter) Execute(context cor.Context) {
	req := context.Get(GetRenderRequestParamName()).(*model.RenderRequest)
	timings := context.Get(GetUnitTimingsParamName()).([]model.UnitTiming)
	units := context.Get(GetUnitsParamName()).([]model.NarrationUnit)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	var events []subtitles.Event
	for i, t := range timings {
		if t.Display == "" {
			continue
		}
		ev := subtitles.Event{Start: t.Start, End: t.End, Text: t.Display}
		if i < len(units) {
			ev.Emphasis = units[i].Emphasis
		}
		events = append(events, ev)
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		context.AddError(c.GetName(), fmt.Errorf("create output directory: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	outPath := filepath.Join(req.OutDir, SubtitleFileName)
	f, err := os.Create(outPath)
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("create subtitle file: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	if err := subtitles.WriteASS(f, events, c.style); err != nil {
		f.Close()
		context.AddError(c.GetName(), fmt.Errorf("write subtitle track: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	if err := f.Close(); err != nil {
		context.AddError(c.GetName(), fmt.Errorf("close subtitle file: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	reporter.Log(fmt.Sprintf("subtitles ready: %d events, %s", len(events), outPath))
	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(cor.CtxOut, events)
}
