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

// This file defines the command that captions clip keyframes through a
// vision model. Captions are the retrieval text for the whole system,
// so the command is built around a persistent cache: only frames with
// no usable caption are sent out, failures are recorded with retry
// counts and re-attempted in a sequential make-up pass, and the cache
// is flushed in batches so a crash never loses more than a few
// responses.
package commands

import (
	goctx "context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/vision"
)

// CaptionCacheFileName is the frame-caption cache inside the project's
// index directory.
const CaptionCacheFileName = "frame_captions.json"

// ClipCaptioner is a command that fills clip captions, merged text, and
// content flags from a caption provider, backed by the persistent
// frame-caption cache.
type ClipCaptioner struct {
	cor.BaseCommand
	provider   vision.CaptionProvider
	workers    int
	inFlight   int
	batchClips int
	flushEvery int
}

// NewClipCaptioner is the constructor for the ClipCaptioner command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - provider: The caption backend (gemini or null).
//   - workers: Concurrent caption workers, clamped to [1, 8].
//   - inFlight: Upper bound on queued batches, clamped to [1, 32].
//   - batchClips: Clips grouped into one vision request, clamped to [1, 20].
//   - flushEvery: Cache flush threshold in dirty entries.
//
// Outputs:
//   - *ClipCaptioner: A pointer to the newly instantiated command.
func NewClipCaptioner(name string, provider vision.CaptionProvider, workers, inFlight, batchClips, flushEvery int) *ClipCaptioner {
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return &ClipCaptioner{
		BaseCommand: *cor.NewBaseCommand(name),
		provider:    provider,
		workers:     clamp(workers, 1, 8),
		inFlight:    clamp(inFlight, 1, 32),
		batchClips:  clamp(batchClips, 1, 20),
		flushEvery:  clamp(flushEvery, 1, 1000),
	}
}

// IsExecutable additionally requires the index request for the cache
// location.
func (c *ClipCaptioner) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(c.GetInputParam()) != nil &&
		context.Get(GetIndexRequestParamName()) != nil
}

// captionItem is one clip awaiting captions.
type captionItem struct {
	clipIdx int
	relKeys []string
	frames  []string
}

// captionBatch groups items into a single vision request.
type captionBatch struct {
	items []captionItem
}

// captionResult returns one caption per item, or a batch-level error.
type captionResult struct {
	batch captionBatch
	caps  []string
	err   error
}

// captionWorker sends one grouped vision request per batch. Each clip's
// frames form one group, so the model sees multi-frame context and
// returns a single caption per clip.
func (c *ClipCaptioner) captionWorker(ctx goctx.Context, batches <-chan captionBatch, results chan<- captionResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for b := range batches {
		groups := make([][]string, 0, len(b.items))
		for _, it := range b.items {
			groups = append(groups, it.frames)
		}
		caps, err := c.provider.CaptionImageGroups(ctx, groups)
		if err == nil && len(caps) != len(b.items) {
			err = fmt.Errorf("caption backend returned %d captions for %d clips", len(caps), len(b.items))
		}
		results <- captionResult{batch: b, caps: caps, err: err}
	}
}

// fillClip writes the per-frame captions back onto the clip and derives
// the merged retrieval text and the content flags.
func fillClip(clips []model.Clip, cache *vision.Cache, idx int, relKeys []string) {
	caps := make([]string, len(relKeys))
	for i, k := range relKeys {
		caps[i] = cache.Get(k).Text
	}
	clips[idx].Captions = caps
	clips[idx].Text = vision.MergeCaptions(caps)
	clips[idx].Flags = vision.FlagsFromCaptions(caps)
}

// Execute captions every clip that the cache cannot already serve.
//
// Logic Flow:
//  1. Load the caption cache; a changed provider key discards it.
//  2. Clips fully covered by the cache are filled immediately; the
//     rest are queued into clip batches.
//  3. A worker pool sends the batches; successes land in the cache and
//     on the clip, failures are marked with a retry count.
//  4. Failed clips get one sequential make-up attempt.
//  5. The cache is flushed at the configured batch size and once at
//     the end; failure markers persist so the next index run retries.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *ClipCaptioner) Execute(context cor.Context) {
	clips := context.Get(c.GetInputParam()).([]model.Clip)
	req := context.Get(GetIndexRequestParamName()).(*model.IndexRequest)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	if c.provider.CacheKey() == "null" {
		reporter.Log("WARNING: caption backend is null; clip text will be empty and matching quality will be poor")
		for i := range clips {
			clips[i].Captions = make([]string, len(clips[i].Frames))
		}
		c.GetSuccessCounter().Add(ctx, 1)
		context.Add(GetClipsParamName(), clips)
		context.Add(cor.CtxOut, clips)
		return
	}

	cachePath := filepath.Join(req.CacheDir, "index", CaptionCacheFileName)
	cache, err := vision.LoadCache(cachePath, c.provider.CacheKey())
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("load caption cache: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	// Pass 1: serve from cache, queue the rest.
	var queue []captionItem
	for i := range clips {
		relKeys := make([]string, len(clips[i].Frames))
		missing := false
		for fi, p := range clips[i].Frames {
			rel, relErr := filepath.Rel(req.CacheDir, p)
			if relErr != nil {
				rel = p
			}
			relKeys[fi] = filepath.ToSlash(rel)
			if cache.Get(relKeys[fi]).Missing() {
				missing = true
			}
		}
		if missing {
			queue = append(queue, captionItem{clipIdx: i, relKeys: relKeys, frames: clips[i].Frames})
		} else {
			fillClip(clips, cache, i, relKeys)
		}
	}
	reporter.Log(fmt.Sprintf("captioning %d of %d clips (cache hits: %d)", len(queue), len(clips), len(clips)-len(queue)))

	batches := make(chan captionBatch, c.inFlight)
	results := make(chan captionResult, len(queue)/c.batchClips+1)
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go c.captionWorker(ctx, batches, results, &wg)
	}

	go func() {
		var cur []captionItem
		for _, it := range queue {
			cur = append(cur, it)
			if len(cur) >= c.batchClips {
				batches <- captionBatch{items: cur}
				cur = nil
			}
		}
		if len(cur) > 0 {
			batches <- captionBatch{items: cur}
		}
		close(batches)
	}()

	// Drain in a separate goroutine so result handling and request
	// submission never deadlock on channel capacity.
	done := make(chan struct{})
	var failed []captionItem
	captionErrors := 0
	go func() {
		defer close(done)
		for r := range results {
			if r.err != nil {
				captionErrors++
				reporter.Log(fmt.Sprintf("WARNING: captioning failed, will retry in make-up pass: %v", r.err))
				for _, it := range r.batch.items {
					for _, k := range it.relKeys {
						cache.MarkFailed(k)
					}
					failed = append(failed, it)
				}
			} else {
				for bi, it := range r.batch.items {
					for _, k := range it.relKeys {
						cache.SetDone(k, r.caps[bi])
					}
					fillClip(clips, cache, it.clipIdx, it.relKeys)
				}
			}
			if err := cache.SaveEvery(c.flushEvery); err != nil {
				reporter.Log(fmt.Sprintf("WARNING: caption cache flush failed: %v", err))
			}
		}
	}()

	wg.Wait()
	close(results)
	<-done

	// Make-up pass: one sequential retry per failed clip, gentle on
	// the backend.
	if len(failed) > 0 && ctx.Err() == nil {
		reporter.Progress(92, fmt.Sprintf("retrying captions for %d clips", len(failed)))
		for _, it := range failed {
			if ctx.Err() != nil {
				break
			}
			var still []string
			var stillFrames []string
			for fi, k := range it.relKeys {
				if cache.Get(k).Missing() {
					still = append(still, k)
					stillFrames = append(stillFrames, it.frames[fi])
				}
			}
			if len(still) == 0 {
				fillClip(clips, cache, it.clipIdx, it.relKeys)
				continue
			}
			caps, capErr := c.provider.CaptionImages(ctx, stillFrames)
			if capErr != nil || len(caps) != len(still) {
				captionErrors++
				reporter.Log(fmt.Sprintf("WARNING: make-up captioning still failing; markers kept for the next index run: %v", capErr))
			} else {
				for i, k := range still {
					cache.SetDone(k, caps[i])
				}
			}
			fillClip(clips, cache, it.clipIdx, it.relKeys)
			if err := cache.SaveEvery(c.flushEvery); err != nil {
				reporter.Log(fmt.Sprintf("WARNING: caption cache flush failed: %v", err))
			}
		}
	}

	if err := cache.Save(); err != nil {
		context.AddError(c.GetName(), fmt.Errorf("save caption cache: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	if err := ctx.Err(); err != nil {
		context.AddError(c.GetName(), err)
		return
	}
	if captionErrors > 0 {
		reporter.Log(fmt.Sprintf("WARNING: caption failures: %d, frames still failed: %d (index stays usable, matching degrades)",
			captionErrors, cache.FailedCount()))
	}

	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(GetClipsParamName(), clips)
	context.Add(cor.CtxOut, clips)
}
