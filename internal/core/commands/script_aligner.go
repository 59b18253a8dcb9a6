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

// This file defines the command that turns the authored script plus
// the word clock into frame-snapped unit timings and the query units
// the scheduler searches with.
package commands

import (
	"fmt"
	"strings"

	"github.com/muziris/go-gist-video/internal/align"
	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/schedule"
	"github.com/muziris/go-gist-video/internal/script"
)

// queryHintCap bounds the keywords folded into a retrieval query so a
// hint-stuffed unit cannot drown out its own narration text.
const queryHintCap = 6

// ScriptAligner is a command that parses the narration script, aligns
// its units onto the word clock, and snaps them to the output frame
// grid.
type ScriptAligner struct {
	cor.BaseCommand
	outputFps int
}

// NewScriptAligner is the constructor for the ScriptAligner command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - outputFps: The output frame rate the timings snap to.
//
// Outputs:
//   - *ScriptAligner: A pointer to the newly instantiated command.
func NewScriptAligner(name string, outputFps int) *ScriptAligner {
	if outputFps < 1 {
		outputFps = 25
	}
	return &ScriptAligner{BaseCommand: *cor.NewBaseCommand(name), outputFps: outputFps}
}

// IsExecutable additionally requires the word tokens and the audio
// duration from the marks loader.
func (c *ScriptAligner) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetRenderRequestParamName()) != nil &&
		context.Get(GetWordTokensParamName()) != nil &&
		context.Get(GetVoiceDurParamName()) != nil
}

// buildQuery assembles the retrieval text for one unit: the project
// name anchors the domain, the narration carries the semantics, and a
// few keywords sharpen the match.
func buildQuery(projectName, clean string, hints []string) string {
	var b strings.Builder
	b.WriteString("作品:")
	b.WriteString(projectName)
	b.WriteString("；")
	b.WriteString(clean)
	if len(hints) > 0 {
		kw := hints
		if len(kw) > queryHintCap {
			kw = kw[:queryHintCap]
		}
		b.WriteString("；关键词:")
		b.WriteString(strings.Join(kw, " "))
	}
	return b.String()
}

// Execute aligns the script onto the audio clock.
//
// Logic Flow:
//  1. Parse the script into narration units; an empty script is an
//     error, not an empty render.
//  2. Align the units' clean text onto the word tokens, spreading any
//     unmatched spans proportionally.
//  3. Snap the boundaries to the output frame grid; every unit keeps
//     at least one frame.
//  4. Emit the unit timings for the EDL and the query units for the
//     scheduler.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *ScriptAligner) Execute(context cor.Context) {
	req := context.Get(GetRenderRequestParamName()).(*model.RenderRequest)
	words := context.Get(GetWordTokensParamName()).([]model.WordToken)
	voiceDur := context.Get(GetVoiceDurParamName()).(float64)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	units := script.ParseScript(req.ScriptText, req.ExtraHints)
	if len(units) == 0 {
		context.AddError(c.GetName(), fmt.Errorf("script produced no narration units"))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	texts := make([]string, len(units))
	for i := range units {
		texts[i] = units[i].Clean
	}
	times, err := align.AlignUnitsToWords(words, texts, voiceDur)
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("align script to speech marks: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	intervals, frames := align.SnapToFrameGrid(times, c.outputFps, voiceDur)

	timings := make([]model.UnitTiming, len(units))
	schedUnits := make([]schedule.Unit, len(units))
	for i := range units {
		timings[i] = model.UnitTiming{
			Text:    units[i].Clean,
			Display: units[i].Display,
			Start:   intervals[i].Start,
			End:     intervals[i].End,
			Frames:  frames[i],
			Hints:   units[i].Hints,
		}
		schedUnits[i] = schedule.Unit{
			Text:  units[i].Clean,
			Query: buildQuery(req.ProjectName, units[i].Clean, units[i].Hints),
			Hints: append(append([]string{}, units[i].Hints...), req.ProjectName),
			Start: intervals[i].Start,
			End:   intervals[i].End,
		}
	}

	reporter.Log(fmt.Sprintf("aligned %d units over %.2fs at %d fps", len(units), voiceDur, c.outputFps))
	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(GetUnitsParamName(), units)
	context.Add(GetUnitTimingsParamName(), timings)
	context.Add(GetScheduleUnitsParamName(), schedUnits)
	context.Add(cor.CtxOut, timings)
}
