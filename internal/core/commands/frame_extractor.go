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

// This file defines the command that samples keyframes for every clip.
// Frames are pulled from the original videos (the proxy is too soft for
// captioning) through a worker pool, since seeks dominate the cost and
// parallel ffmpeg invocations overlap well. Extraction is resumable:
// existing frame files are reused.
package commands

import (
	goctx "context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/media"
	"github.com/muziris/go-gist-video/internal/shots"
)

// FrameExtractor is a command that extracts caption keyframes for every
// clip in parallel.
type FrameExtractor struct {
	cor.BaseCommand
	tools           *media.Tools
	framesPerClip   int
	numberOfWorkers int
}

// NewFrameExtractor is the constructor for the FrameExtractor command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - tools: Resolved ffmpeg/ffprobe binaries.
//   - framesPerClip: Keyframes sampled per clip.
//   - numberOfWorkers: The size of the extraction worker pool.
//
// Outputs:
//   - *FrameExtractor: A pointer to the newly instantiated command.
func NewFrameExtractor(name string, tools *media.Tools, framesPerClip, numberOfWorkers int) *FrameExtractor {
	if framesPerClip < 1 {
		framesPerClip = 1
	}
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	return &FrameExtractor{
		BaseCommand:     *cor.NewBaseCommand(name),
		tools:           tools,
		framesPerClip:   framesPerClip,
		numberOfWorkers: numberOfWorkers,
	}
}

// IsExecutable additionally requires the prepared video assets so frame
// files can land in each video's cache directory.
func (c *FrameExtractor) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(c.GetInputParam()) != nil &&
		context.Get(GetVideoAssetsParamName()) != nil
}

// frameJob is one keyframe extraction task.
type frameJob struct {
	clipIdx  int
	frameIdx int
	src      string
	at       float64
	outJpg   string
}

// frameResult carries the finished path (or error) back to Execute.
type frameResult struct {
	clipIdx  int
	frameIdx int
	path     string
	err      error
}

// frameWorker drains extraction jobs until the channel closes.
func (c *FrameExtractor) frameWorker(ctx goctx.Context, jobs <-chan frameJob, results chan<- frameResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		err := c.tools.ExtractFrame(ctx, j.src, j.at, j.outJpg)
		results <- frameResult{clipIdx: j.clipIdx, frameIdx: j.frameIdx, path: j.outJpg, err: err}
	}
}

// Execute samples frames for every clip through the worker pool and
// attaches the resulting paths to the clip table.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *FrameExtractor) Execute(context cor.Context) {
	clips := context.Get(c.GetInputParam()).([]model.Clip)
	assets := context.Get(GetVideoAssetsParamName()).([]model.VideoAsset)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	cacheBySource := make(map[string]string, len(assets))
	for _, a := range assets {
		cacheBySource[a.SourcePath] = a.CacheDir
	}

	totalFrames := len(clips) * c.framesPerClip
	jobs := make(chan frameJob, totalFrames)
	results := make(chan frameResult, totalFrames)

	var wg sync.WaitGroup
	for w := 0; w < c.numberOfWorkers; w++ {
		wg.Add(1)
		go c.frameWorker(ctx, jobs, results, &wg)
	}

	// Clip file names restart per video, matching the id scheme, so a
	// per-source counter reproduces the numbering.
	clipSeq := make(map[string]int)
	for i := range clips {
		clips[i].Frames = make([]string, c.framesPerClip)
		si := clipSeq[clips[i].SourcePath]
		clipSeq[clips[i].SourcePath] = si + 1
		framesDir := filepath.Join(cacheBySource[clips[i].SourcePath], "frames")
		for fi, at := range shots.PickFrameTimes(clips[i].Start, clips[i].End, c.framesPerClip) {
			jobs <- frameJob{
				clipIdx:  i,
				frameIdx: fi,
				src:      clips[i].SourcePath,
				at:       at,
				outJpg:   filepath.Join(framesDir, fmt.Sprintf("clip_%05d_f%d.jpg", si, fi)),
			}
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	extracted := 0
	for r := range results {
		if r.err != nil {
			c.GetErrorCounter().Add(ctx, 1)
			context.AddError(c.GetName(), fmt.Errorf("extract frame %d of clip %s: %w", r.frameIdx, clips[r.clipIdx].ClipID, r.err))
			continue
		}
		clips[r.clipIdx].Frames[r.frameIdx] = r.path
		extracted++
	}
	if context.HasErrors() {
		return
	}

	reporter.Log(fmt.Sprintf("extracted %d frames for %d clips", extracted, len(clips)))
	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(GetClipsParamName(), clips)
	context.Add(cor.CtxOut, clips)
}
