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

// Package schedule assigns one continuous footage segment to every
// narration unit. Three rules are absolute: a segment never crosses a
// real shot boundary, every unit gets exactly one segment, and segment
// durations equal narration durations. Everything else — similarity,
// keyword hits, shot cooldown, source variety — is preference, degraded
// tier by tier before the scheduler ever gives up.
//
// Logic Flow (per unit, in narration order):
//  1. Reduce clip scores to shot scores: each shot is represented by
//     its best-scoring clip for this unit.
//  2. Tier 1: shots long enough for the unit whose cooldown window has
//     passed. Tier 2: waive the cooldown. Tier 3: no shot fits at all;
//     clamp the unit to the longest shot and warn.
//  3. When any candidate has keyword hits, drop the hitless ones, then
//     rank by (hits, score, shot length) descending.
//  4. Place the segment at the winning clip's midpoint, clamped inside
//     the shot; shift forward (or try the next candidate) when it lands
//     too close to the previous segment from the same source.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/muziris/go-gist-video/internal/index"
)

// ErrNoUsableShots means the index holds no shot the scheduler could
// place any segment in.
var ErrNoUsableShots = errors.New("no usable shots available in index")

// Unit is the scheduler's view of one narration unit: the text shown to
// humans, the query text embedded for matching (may carry extra hint
// context), the matching keywords, and the unit's narration interval.
type Unit struct {
	Text  string
	Query string
	Hints []string
	Start float64
	End   float64
}

// Options are the scheduler's tuning knobs. Zero values select the
// defaults noted on each field.
type Options struct {
	DedupWindowSec       float64 // Shot cooldown on the output clock; default 60.
	KeywordBoost         float64 // Score bonus per keyword hit in the clip caption.
	SubtitleHeavyPenalty float64 // Score penalty for subtitle_heavy clips.
	MinSameSourceGapSec  float64 // Minimum source-time gap to the previous segment of the same source; default 0.8.
	CandidateCap         int     // Ranked candidates considered for placement; default 240.
}

func (o Options) withDefaults() Options {
	if o.DedupWindowSec <= 0 {
		o.DedupWindowSec = 60
	}
	if o.MinSameSourceGapSec <= 0 {
		o.MinSameSourceGapSec = 0.8
	}
	if o.CandidateCap <= 0 {
		o.CandidateCap = 240
	}
	return o
}

// shotCand is one ranked candidate for the current unit.
type shotCand struct {
	hit     int
	score   float64
	shotLen float64
	key     index.ShotKey
	clipIdx int
}

// overlapBonus counts how many hints appear verbatim in the clip's
// caption text.
func overlapBonus(hints []string, clipText string) int {
	if len(hints) == 0 || clipText == "" {
		return 0
	}
	n := 0
	for _, h := range hints {
		if h != "" && strings.Contains(clipText, h) {
			n++
		}
	}
	return n
}

// PickSegments schedules footage for every narration unit.
//
// Inputs:
//   - units: narration units with aligned (pre-snap) intervals.
//   - clips, clipVecs: the filtered clip table and its vector rows.
//   - provider: the query embedder, same vector space as clipVecs.
//   - opts: tuning knobs; see Options.
//
// Outputs:
//   - one model.TimelineSegment per unit, in narration order.
//   - error on cancellation, embedding failure, dimension drift, a
//     clip table without shot structure, or ErrNoUsableShots.
func PickSegments(ctx context.Context, units []Unit, clips []model.Clip, clipVecs [][]float32, provider embed.Provider, opts Options) ([]model.TimelineSegment, error) {
	if len(units) == 0 {
		return nil, nil
	}
	opts = opts.withDefaults()

	queries := make([]string, len(units))
	for i, u := range units {
		queries[i] = u.Query
		if queries[i] == "" {
			queries[i] = u.Text
		}
	}
	unitVecs, err := provider.EmbedTexts(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("embed unit queries: %w", err)
	}
	if err := index.CheckDims(unitVecs, clipVecs); err != nil {
		return nil, err
	}
	sims := embed.CosineSimMatrix(unitVecs, clipVecs)

	shotIdx, err := index.BuildShotIndex(clips)
	if err != nil {
		return nil, err
	}
	if shotIdx.Len() == 0 {
		return nil, errors.New("clip table has no shot structure; rebuild the index with scene slicing")
	}

	used := make(map[index.ShotKey]float64) // shot -> last use on the output clock
	outT := 0.0
	prevSrc := ""
	prevOutSrcT := 0.0
	havePrev := false

	segments := make([]model.TimelineSegment, 0, len(units))
	for ui, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := math.Max(0.05, u.End-u.Start)
		scores := sims[ui]

		// Best clip per shot for this unit.
		type best struct {
			score   float64
			clipIdx int
			hit     int
		}
		shotBest := make(map[index.ShotKey]best, shotIdx.Len())
		for ci, c := range clips {
			hit := overlapBonus(u.Hints, c.Text)
			adj := float64(scores[ci]) + opts.KeywordBoost*float64(hit)
			if opts.SubtitleHeavyPenalty > 1e-9 && c.HasFlag(model.FlagSubtitleHeavy) {
				adj -= opts.SubtitleHeavyPenalty
			}
			key := index.ShotKey{SourcePath: c.SourcePath, ShotID: c.ShotID}
			if prev, ok := shotBest[key]; !ok || adj > prev.score {
				shotBest[key] = best{score: adj, clipIdx: ci, hit: hit}
			}
		}

		// Tier 1: long enough and outside the cooldown window. Tier 2
		// waives the cooldown. The sorted key walk keeps candidate order
		// (and therefore every tie-break) deterministic across runs.
		tier := 1
		collect := func(respectCooldown bool) []shotCand {
			var cand []shotCand
			for _, key := range shotIdx.Keys() {
				b, ok := shotBest[key]
				if !ok {
					continue
				}
				sh := shotIdx.Get(key)
				shotLen := sh.Dur()
				if shotLen+1e-6 < target {
					continue
				}
				if respectCooldown {
					if last, seen := used[key]; seen && outT-last < opts.DedupWindowSec {
						continue
					}
				}
				cand = append(cand, shotCand{hit: b.hit, score: b.score, shotLen: shotLen, key: key, clipIdx: b.clipIdx})
			}
			return cand
		}
		cand := collect(true)
		if len(cand) == 0 {
			tier = 2
			cand = collect(false)
		}
		if len(cand) == 0 {
			// Tier 3: nothing can hold the full unit. Clamp the unit to
			// the longest shot rather than failing the render.
			tier = 3
			var longest *shotCand
			for _, key := range shotIdx.Keys() {
				b, ok := shotBest[key]
				if !ok {
					continue
				}
				shotLen := shotIdx.Get(key).Dur()
				if longest == nil || shotLen > longest.shotLen {
					longest = &shotCand{shotLen: shotLen, key: key, clipIdx: b.clipIdx}
				}
			}
			if longest == nil {
				return nil, ErrNoUsableShots
			}
			slog.Warn("narration unit longer than every shot; clamping segment",
				"unit", ui, "want_sec", target, "max_shot_sec", longest.shotLen)
			target = math.Max(0.05, math.Min(target, longest.shotLen))
			cand = []shotCand{*longest}
		}

		// Prefer candidates with keyword hits when any exist.
		if anyHit(cand) {
			kept := cand[:0:len(cand)]
			for _, c := range cand {
				if c.hit > 0 {
					kept = append(kept, c)
				}
			}
			cand = kept
		}
		sort.SliceStable(cand, func(i, j int) bool {
			if cand[i].hit != cand[j].hit {
				return cand[i].hit > cand[j].hit
			}
			if cand[i].score != cand[j].score {
				return cand[i].score > cand[j].score
			}
			return cand[i].shotLen > cand[j].shotLen
		})
		if len(cand) > opts.CandidateCap {
			cand = cand[:opts.CandidateCap]
		}

		var seg *model.TimelineSegment
		for _, c := range cand {
			sh := shotIdx.Get(c.key)
			if sh.Dur()+1e-6 < target {
				continue
			}
			inT, outSrc := placeWithinShot(clips[c.clipIdx], sh, target)

			// Keep distance from the previous segment when it came from
			// the same source; shift forward inside the shot or move on.
			if havePrev && c.key.SourcePath == prevSrc && inT < prevOutSrcT+opts.MinSameSourceGapSec {
				shifted := math.Max(inT, prevOutSrcT+opts.MinSameSourceGapSec)
				shifted = math.Min(shifted, sh.End-target)
				if shifted <= inT+1e-3 {
					continue
				}
				inT = shifted
				outSrc = inT + target
			}

			seg = buildSegment(ui, c, clips[c.clipIdx], sh, inT, outSrc, target, tier)
			break
		}
		if seg == nil {
			// Every candidate collided with the same-source gap; take the
			// top one anyway. A close repeat beats a missing segment.
			c := cand[0]
			sh := shotIdx.Get(c.key)
			inT, outSrc := placeWithinShot(clips[c.clipIdx], sh, target)
			seg = buildSegment(ui, c, clips[c.clipIdx], sh, inT, outSrc, target, tier)
		}

		segments = append(segments, *seg)
		used[index.ShotKey{SourcePath: seg.SourcePath, ShotID: seg.ShotID}] = outT
		prevSrc = seg.SourcePath
		prevOutSrcT = seg.Out
		havePrev = true
		outT += target
	}
	return segments, nil
}

func anyHit(cand []shotCand) bool {
	for _, c := range cand {
		if c.hit > 0 {
			return true
		}
	}
	return false
}

// placeWithinShot centers the segment on the anchor clip's midpoint,
// clamped so it never leaves the shot.
func placeWithinShot(anchor model.Clip, sh *model.Shot, target float64) (inT, outSrc float64) {
	mid := (anchor.Start + anchor.End) / 2.0
	inT = math.Max(sh.Start, math.Min(mid-target/2.0, sh.End-target))
	return inT, inT + target
}

func buildSegment(ui int, c shotCand, anchor model.Clip, sh *model.Shot, inT, outSrc, target float64, tier int) *model.TimelineSegment {
	return &model.TimelineSegment{
		UnitIdx:      ui,
		SourcePath:   c.key.SourcePath,
		ShotID:       c.key.ShotID,
		ShotStart:    sh.Start,
		ShotEnd:      sh.End,
		In:           inT,
		Out:          outSrc,
		Dur:          target,
		Score:        c.score,
		Hit:          c.hit,
		Tier:         tier,
		AnchorClipID: anchor.ClipID,
	}
}
