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

// This file implements the render workflow: script plus narration
// audio in, fully timed edit decision list and subtitle track out.
package workflow

import (
	goctx "context"

	"github.com/muziris/go-gist-video/internal/config"
	"github.com/muziris/go-gist-video/internal/core/commands"
	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/muziris/go-gist-video/internal/media"
	"github.com/muziris/go-gist-video/internal/schedule"
)

// RenderWorkflow resolves one render request into edl.json and
// subtitles.ass. The narration audio is the master clock: every unit
// boundary and segment duration derives from the speech marks, snapped
// to the output frame grid.
type RenderWorkflow struct {
	cor.BaseCommand
	config   *config.Config
	tools    *media.Tools
	embedder embed.Provider
	chain    cor.Chain
}

// Execute runs the render chain against the supplied context.
//
// Inputs:
//   - context: The chain of responsibility context for this execution.
func (w *RenderWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// initializeChain builds the command sequence of the render pipeline.
func (w *RenderWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	// Step 1: load the speech marks and probe the narration audio;
	// mismatched takes are refused here, before any work happens.
	out.AddCommand(commands.NewMarksLoader("load-speech-marks", w.tools))

	// Step 2: parse the script and align its units onto the word clock.
	out.AddCommand(commands.NewScriptAligner("align-script", w.config.Render.OutputFps))

	// Step 3: match units against the footage index and schedule one
	// segment per unit. The configured embedder serves as the query
	// backend for indexes built with a non-reproducible provider.
	out.AddCommand(commands.NewSegmentScheduler(
		"schedule-segments",
		schedule.Options{
			DedupWindowSec:       w.config.Render.DedupWindowSec,
			KeywordBoost:         w.config.Render.KeywordBoost,
			SubtitleHeavyPenalty: w.config.Render.SubtitleHeavyPenalty,
			MinSameSourceGapSec:  w.config.Render.MinSameSourceGapSec,
		},
		w.embedder))

	// Step 4: persist the resolved edit.
	out.AddCommand(commands.NewEdlWriter("write-edl", w.config.Render.OutputFps))

	// Step 5: emit the styled subtitle track.
	out.AddCommand(commands.NewSubtitleWriter("write-subtitles", w.config.Render.SubtitleStyle()))

	w.chain = out
}

// Run executes the workflow for one render request, bridging the job
// layer (reporter, pause/cancel gate) into the chain context.
//
// Inputs:
//   - ctx: The Go context; cancellation unwinds the running command.
//   - req: The render request naming script, audio, index, and output.
//   - reporter: Receives progress and log lines; may be nil.
//   - gate: Pause/cancel gate polled at command boundaries; may be nil.
//
// Outputs:
//   - error: The first error the chain collected, nil on success.
func (w *RenderWorkflow) Run(ctx goctx.Context, req *model.RenderRequest, reporter commands.Reporter, gate cor.Gate) error {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, req)
	chainCtx.Add(commands.GetRenderRequestParamName(), req)
	if reporter != nil {
		chainCtx.Add(commands.GetReporterParamName(), reporter)
	}
	if gate != nil {
		chainCtx.Add(cor.CtxGate, gate)
	}

	w.Execute(chainCtx)
	return firstError(chainCtx)
}

// NewRenderWorkflow is the constructor for the RenderWorkflow.
//
// Inputs:
//   - cfg: The application's overall configuration.
//   - tools: Resolved ffmpeg/ffprobe binaries.
//   - embedder: The configured query embedder; nil falls back to the
//     deterministic local-hash provider at the configured dimension.
//
// Outputs:
//   - *RenderWorkflow: A pointer to the fully initialized workflow.
func NewRenderWorkflow(cfg *config.Config, tools *media.Tools, embedder embed.Provider) *RenderWorkflow {
	if embedder == nil {
		embedder = embed.NewLocalHashProvider(cfg.Embedding.Dim)
	}
	w := &RenderWorkflow{
		BaseCommand: *cor.NewBaseCommand("render-pipeline"),
		config:      cfg,
		tools:       tools,
		embedder:    embedder,
	}
	w.initializeChain()
	return w
}
