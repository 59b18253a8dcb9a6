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

// This file defines the command that loads the footage index and picks
// one source segment per narration unit.
package commands

import (
	"fmt"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/muziris/go-gist-video/internal/index"
	"github.com/muziris/go-gist-video/internal/schedule"
)

// SegmentScheduler is a command that matches narration units against
// the indexed footage and schedules the winning segments.
type SegmentScheduler struct {
	cor.BaseCommand
	opts     schedule.Options
	fallback embed.Provider
}

// NewSegmentScheduler is the constructor for the SegmentScheduler
// command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - opts: Scheduler tuning (cooldowns, boosts, penalties).
//   - fallback: The configured query embedder, used when the index does
//     not name a backend it can rebuild on its own.
//
// Outputs:
//   - *SegmentScheduler: A pointer to the newly instantiated command.
func NewSegmentScheduler(name string, opts schedule.Options, fallback embed.Provider) *SegmentScheduler {
	return &SegmentScheduler{
		BaseCommand: *cor.NewBaseCommand(name),
		opts:        opts,
		fallback:    fallback,
	}
}

// IsExecutable additionally requires the scheduler units built by the
// script aligner.
func (c *SegmentScheduler) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetRenderRequestParamName()) != nil &&
		context.Get(GetScheduleUnitsParamName()) != nil
}

// Execute loads the index artifact and schedules one segment per unit.
//
// Logic Flow:
//  1. Load the clip table and vector matrix from the index directory.
//  2. Drop clips whose captions carry blocking content flags.
//  3. Re-create a query embedder compatible with the index vectors.
//  4. Run the scheduler; its tiered placement guarantees a segment for
//     every unit as long as a single clip survives filtering.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *SegmentScheduler) Execute(context cor.Context) {
	req := context.Get(GetRenderRequestParamName()).(*model.RenderRequest)
	units := context.Get(GetScheduleUnitsParamName()).([]schedule.Unit)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	artifact, vecs, err := index.LoadArtifact(req.IndexDir)
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("load footage index: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	clips, vecs, blocked, err := index.FilterBlocked(artifact.Clips, vecs)
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("filter blocked clips: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	if blocked > 0 {
		reporter.Log(fmt.Sprintf("dropped %d clips with blocking content flags", blocked))
	}
	if len(clips) == 0 {
		context.AddError(c.GetName(), fmt.Errorf("footage index %s has no usable clips", req.IndexDir))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	provider, err := index.ProviderForArtifact(artifact.Embedding, c.fallback)
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("rebuild query embedder: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	segments, err := schedule.PickSegments(ctx, units, clips, vecs, provider, c.opts)
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("schedule segments: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	reporter.Log(fmt.Sprintf("scheduled %d segments from %d clips", len(segments), len(clips)))
	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(GetSegmentsParamName(), segments)
	context.Add(cor.CtxOut, segments)
}
