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

// Package workflow defines the high-level business logic orchestrations,
// combining various commands into coherent pipelines. This file implements
// the footage indexing workflow.
package workflow

import (
	goctx "context"
	"errors"
	"fmt"

	"github.com/muziris/go-gist-video/internal/config"
	"github.com/muziris/go-gist-video/internal/core/commands"
	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/muziris/go-gist-video/internal/media"
	"github.com/muziris/go-gist-video/internal/shots"
	"github.com/muziris/go-gist-video/internal/vision"
)

// IndexWorkflow turns a project's source videos into the on-disk
// footage index: a proxy and shot table per video, captioned keyframes
// per clip, and an embedded clip table the render workflow can search.
// It is structured as a Chain of Responsibility (cor.Chain) so each
// stage is traced, metered, and resumable on its own.
type IndexWorkflow struct {
	cor.BaseCommand
	config          *config.Config
	tools           *media.Tools
	captionProvider vision.CaptionProvider
	embedProvider   embed.Provider
	chain           cor.Chain
}

// Execute runs the indexing chain against the supplied context.
//
// Inputs:
//   - context: The chain of responsibility context for this execution.
func (w *IndexWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// initializeChain builds the sequence of commands that make up this
// workflow. The output of each command is the input of the next.
func (w *IndexWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	// Step 1: transcode an analysis proxy per video and probe its
	// duration. Existing proxies are reused.
	out.AddCommand(commands.NewVideoPrepare("prepare-videos", w.tools, w.config.Media.ProxyHeight))

	// Step 2: slice each video into shots and capture windows.
	out.AddCommand(commands.NewShotSlicer(
		"slice-shots",
		w.tools,
		w.config.Media.SliceMode,
		w.config.Media.SceneThreshold,
		w.config.Media.SceneFps,
		w.config.Media.FixedClipSec,
		w.config.Media.SkipHeadSec,
		w.config.Media.SkipTailSec,
		shots.Bounds{
			Min:    w.config.Media.ClipMinSec,
			Target: w.config.Media.ClipTargetSec,
			Max:    w.config.Media.ClipMaxSec,
		}))

	// Step 3: sample keyframes for every clip through a worker pool.
	out.AddCommand(commands.NewFrameExtractor(
		"extract-frames", w.tools, w.config.Media.FramesPerClip, w.config.Application.ThreadPoolSize))

	// Step 4: caption the keyframes, cache-first with bounded
	// concurrency and a make-up pass for failures.
	out.AddCommand(commands.NewClipCaptioner(
		"caption-clips",
		w.captionProvider,
		w.config.Vision.CaptionWorkers,
		w.config.Vision.CaptionInFlight,
		w.config.Vision.CaptionBatchClips,
		w.config.Vision.CaptionFlushEvery))

	// Step 5: embed the merged caption text per clip.
	out.AddCommand(commands.NewClipEmbedder("embed-clips", w.embedProvider, w.config.Embedding.Dim))

	// Step 6: persist the clip table, vectors, and embedding metadata.
	out.AddCommand(commands.NewIndexWriter("write-index"))

	w.chain = out
}

// Run executes the workflow for one index request, bridging the job
// layer (reporter, pause/cancel gate) into the chain context.
//
// Inputs:
//   - ctx: The Go context; cancellation unwinds the running command.
//   - req: The index request naming the videos and the cache location.
//   - reporter: Receives progress and log lines; may be nil.
//   - gate: Pause/cancel gate polled at command boundaries; may be nil.
//
// Outputs:
//   - error: The first error the chain collected, nil on success.
func (w *IndexWorkflow) Run(ctx goctx.Context, req *model.IndexRequest, reporter commands.Reporter, gate cor.Gate) error {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, req)
	chainCtx.Add(commands.GetIndexRequestParamName(), req)
	if reporter != nil {
		chainCtx.Add(commands.GetReporterParamName(), reporter)
	}
	if gate != nil {
		chainCtx.Add(cor.CtxGate, gate)
	}

	w.Execute(chainCtx)
	return firstError(chainCtx)
}

// firstError collapses the chain's error map into a single error. A
// context cancellation wins so callers can distinguish "canceled" from
// "failed".
func firstError(chainCtx cor.Context) error {
	errs := chainCtx.GetErrors()
	if len(errs) == 0 {
		return nil
	}
	var joined error
	for name, err := range errs {
		if errors.Is(err, goctx.Canceled) {
			return err
		}
		joined = errors.Join(joined, fmt.Errorf("%s: %w", name, err))
	}
	return joined
}

// NewIndexWorkflow is the constructor for the IndexWorkflow.
//
// Inputs:
//   - cfg: The application's overall configuration.
//   - tools: Resolved ffmpeg/ffprobe binaries.
//   - captionProvider: The caption backend for clip keyframes.
//   - embedProvider: The embedding backend for clip caption text.
//
// Outputs:
//   - *IndexWorkflow: A pointer to the fully initialized workflow.
func NewIndexWorkflow(cfg *config.Config, tools *media.Tools, captionProvider vision.CaptionProvider, embedProvider embed.Provider) *IndexWorkflow {
	w := &IndexWorkflow{
		BaseCommand:     *cor.NewBaseCommand("index-pipeline"),
		config:          cfg,
		tools:           tools,
		captionProvider: captionProvider,
		embedProvider:   embedProvider,
	}
	w.initializeChain()
	return w
}
