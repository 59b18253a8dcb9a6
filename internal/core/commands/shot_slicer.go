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

// This file defines the command that turns prepared videos into the
// clip table skeleton: scene-cut detection on the proxy, head/tail
// clamping, and capture-window carving inside each detected shot.
// Windows never cross a shot boundary; that invariant is what lets the
// scheduler later slide an in-point freely inside a shot.
package commands

import (
	"fmt"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/media"
	"github.com/muziris/go-gist-video/internal/shots"
)

// ShotSlicer is a command that slices prepared videos into shots and
// capture windows.
type ShotSlicer struct {
	cor.BaseCommand
	tools          *media.Tools
	sliceMode      string // "scene" or "fixed"
	sceneThreshold float64
	sceneFps       float64
	fixedClipSec   float64
	skipHeadSec    float64
	skipTailSec    float64
	bounds         shots.Bounds
}

// NewShotSlicer is the constructor for the ShotSlicer command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - tools: Resolved ffmpeg/ffprobe binaries.
//   - sliceMode: "scene" for detector-driven slicing, "fixed" otherwise.
//   - sceneThreshold, sceneFps: Scene detector tuning.
//   - fixedClipSec: Window length for fixed slicing and the fallback.
//   - skipHeadSec, skipTailSec: Seconds trimmed from each end.
//   - bounds: Clip duration constraints (min/target/max).
//
// Outputs:
//   - *ShotSlicer: A pointer to the newly instantiated command.
func NewShotSlicer(
	name string,
	tools *media.Tools,
	sliceMode string,
	sceneThreshold, sceneFps, fixedClipSec, skipHeadSec, skipTailSec float64,
	bounds shots.Bounds) *ShotSlicer {
	return &ShotSlicer{
		BaseCommand:    *cor.NewBaseCommand(name),
		tools:          tools,
		sliceMode:      sliceMode,
		sceneThreshold: sceneThreshold,
		sceneFps:       sceneFps,
		fixedClipSec:   fixedClipSec,
		skipHeadSec:    skipHeadSec,
		skipTailSec:    skipTailSec,
		bounds:         bounds,
	}
}

// sliceVideo produces the shot spans of one video. A failed or empty
// scene scan degrades to fixed windows so indexing always proceeds.
func (c *ShotSlicer) sliceVideo(context cor.Context, asset model.VideoAsset, reporter Reporter) []model.Interval {
	ctx := context.GetContext()
	var spans []model.Interval
	if c.sliceMode == "scene" {
		cuts, err := c.tools.DetectSceneCuts(ctx, asset.ProxyPath, c.sceneThreshold, c.sceneFps)
		if err != nil {
			reporter.Log(fmt.Sprintf("WARNING: scene detection failed on %s; falling back to fixed slicing: %v", asset.SourcePath, err))
			spans = shots.FixedSlices(asset.Duration, c.fixedClipSec)
		} else {
			reporter.Log(fmt.Sprintf("scene scan: threshold=%.3f fps=%.2f cuts=%d", c.sceneThreshold, c.sceneFps, len(cuts)))
			spans = shots.RawSlices(cuts, asset.Duration)
		}
	} else {
		spans = shots.FixedSlices(asset.Duration, c.fixedClipSec)
	}

	if c.skipHeadSec > 0 || c.skipTailSec > 0 {
		cutoff := asset.Duration - c.skipTailSec
		if cutoff < 0 {
			cutoff = 0
		}
		spans = shots.ClampSlices(spans, c.skipHeadSec, cutoff, 0.5)
	}
	return spans
}

// Execute builds the clip table skeleton for every prepared video.
// Scene mode carves capture windows inside each detected shot; fixed
// mode normalizes the uniform windows into one clip per span. Clip ids
// follow the v%04d_c%05d scheme so frame files stay stable across
// re-index runs.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *ShotSlicer) Execute(context cor.Context) {
	assets := context.Get(c.GetInputParam()).([]model.VideoAsset)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	var allClips []model.Clip
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			context.AddError(c.GetName(), err)
			return
		}
		spans := c.sliceVideo(context, asset, reporter)

		var clips []model.Clip
		if c.sliceMode == "scene" {
			clips = shots.WindowClips(spans, c.bounds)
		} else {
			for i, sp := range shots.NormalizeSlices(spans, c.bounds) {
				clips = append(clips, model.Clip{
					Start: sp.Start, End: sp.End,
					ShotID: i, ShotStart: sp.Start, ShotEnd: sp.End,
				})
			}
		}
		if len(clips) == 0 {
			reporter.Log(fmt.Sprintf("WARNING: empty slice result for %s; falling back to fixed slicing", asset.SourcePath))
			fallback := shots.FixedSlices(asset.Duration, c.fixedClipSec)
			if c.skipHeadSec > 0 || c.skipTailSec > 0 {
				cutoff := asset.Duration - c.skipTailSec
				if cutoff < 0 {
					cutoff = 0
				}
				fallback = shots.ClampSlices(fallback, c.skipHeadSec, cutoff, 0.5)
			}
			for i, sp := range fallback {
				clips = append(clips, model.Clip{
					Start: sp.Start, End: sp.End,
					ShotID: i, ShotStart: sp.Start, ShotEnd: sp.End,
				})
			}
		}

		for i := range clips {
			clips[i].SourcePath = asset.SourcePath
			clips[i].ClipID = fmt.Sprintf("v%04d_c%05d", asset.Index, i)
		}
		reporter.Log(fmt.Sprintf("[%d] clips: %d (mode=%s, %.1f-%.1fs)",
			asset.Index, len(clips), c.sliceMode, c.bounds.Min, c.bounds.Max))
		allClips = append(allClips, clips...)
	}

	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(GetClipsParamName(), allClips)
	context.Add(cor.CtxOut, allClips)
}
