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

// Package shots turns raw scene-cut timestamps into shots that obey
// configured min/target/max duration bounds, and windows clips out of
// those shots for captioning and embedding. The one rule that never
// bends: a true detected cut is never relocated or crossed — merging and
// splitting only ever touch boundaries this package introduced itself.
//
// Logic Flow:
//  1. RawSlices: cut timestamps plus the video edges become raw spans;
//     cuts hugging the edges (within 50ms) and spans under half a second
//     are noise and dropped.
//  2. ClampSlices: optional head/tail trimming (skip intros, credits).
//  3. NormalizeSlices: merge sub-minimum spans forward (the last one
//     backward), then split over-maximum spans at target-length marks,
//     pulling a cut back when it would strand a sub-minimum remainder.
//  4. WindowClips: inside each final shot, carve capture windows of
//     target length; a shot already within max stays whole.
package shots

import (
	"math"
	"sort"

	"github.com/muziris/go-gist-video/internal/core/model"
)

// Bounds are the configured shot/clip duration constraints, in seconds.
// Normalization forces 0.5 <= Min <= Target <= Max.
type Bounds struct {
	Min    float64
	Target float64
	Max    float64
}

// normalized returns the bounds with the package's hard floors applied.
func (b Bounds) normalized() Bounds {
	minSec := math.Max(0.5, b.Min)
	maxSec := math.Max(minSec, b.Max)
	targetSec := math.Max(minSec, math.Min(b.Target, maxSec))
	return Bounds{Min: minSec, Target: targetSec, Max: maxSec}
}

// round3 rounds to milliseconds. Cut detectors report sub-millisecond
// jitter across runs; everything downstream keys on these values.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// RawSlices builds the initial shot spans from detected cut timestamps
// and the video duration. Cuts outside (0.05, duration-0.05) are edge
// noise; spans shorter than half a second cannot hold a usable frame
// sample and are dropped.
func RawSlices(cuts []float64, duration float64) []model.Interval {
	set := map[float64]bool{round3(0): true, round3(duration): true}
	for _, c := range cuts {
		if c > 0.05 && c < duration-0.05 {
			set[round3(c)] = true
		}
	}
	pts := make([]float64, 0, len(set))
	for p := range set {
		pts = append(pts, p)
	}
	sort.Float64s(pts)

	var out []model.Interval
	for i := 0; i+1 < len(pts); i++ {
		if pts[i+1]-pts[i] >= 0.5 {
			out = append(out, model.Interval{Start: pts[i], End: pts[i+1]})
		}
	}
	return out
}

// FixedSlices cuts the whole duration into uniform chunks of clipSec.
// This is the degraded-input fallback when scene detection fails or
// yields nothing usable; the result has no shot identity.
func FixedSlices(duration, clipSec float64) []model.Interval {
	var out []model.Interval
	t := 0.0
	for t < duration {
		end := math.Min(duration, t+clipSec)
		if end-t >= 0.5 {
			out = append(out, model.Interval{Start: t, End: end})
		}
		t = end
	}
	return out
}

// ClampSlices trims every span to [start, end] and drops what falls
// below minKeep seconds afterwards. Used to skip configured head/tail
// regions (intros, credits) before normalization.
func ClampSlices(slices []model.Interval, start, end, minKeep float64) []model.Interval {
	start = math.Max(0, start)
	end = math.Max(start, end)
	var out []model.Interval
	for _, sl := range slices {
		s := math.Max(sl.Start, start)
		e := math.Min(sl.End, end)
		if e-s >= minKeep {
			out = append(out, model.Interval{Start: round3(s), End: round3(e)})
		}
	}
	return out
}

// NormalizeSlices enforces the duration bounds on raw spans while
// keeping every original boundary that survives: sub-minimum spans merge
// forward into their successor (the trailing one merges backward), and
// over-maximum spans split at target-length marks, with each introduced
// cut pulled back when it would leave a remainder under the minimum and
// kept at least half a second from both edges.
func NormalizeSlices(slices []model.Interval, b Bounds) []model.Interval {
	nb := b.normalized()
	if len(slices) == 0 {
		return nil
	}

	// Merge short spans forward.
	var merged []model.Interval
	curS, curE := slices[0].Start, slices[0].End
	for _, sl := range slices[1:] {
		if curE-curS < nb.Min {
			curE = sl.End
			continue
		}
		merged = append(merged, model.Interval{Start: curS, End: curE})
		curS, curE = sl.Start, sl.End
	}
	merged = append(merged, model.Interval{Start: curS, End: curE})

	// A still-short final span merges backward.
	if n := len(merged); n >= 2 && merged[n-1].End-merged[n-1].Start < nb.Min {
		merged[n-2].End = merged[n-1].End
		merged = merged[:n-1]
	}

	var split []model.Interval
	for _, sl := range merged {
		split = append(split, splitOne(sl, nb)...)
	}

	// Cleanup: a sub-minimum span merges into its predecessor, re-split
	// if that pushes the predecessor over max.
	var cleaned []model.Interval
	for _, sl := range split {
		if len(cleaned) > 0 && sl.End-sl.Start < nb.Min {
			prev := cleaned[len(cleaned)-1]
			cleaned = cleaned[:len(cleaned)-1]
			if sl.End-prev.Start > nb.Max+1e-6 {
				cleaned = append(cleaned, splitOne(model.Interval{Start: prev.Start, End: sl.End}, nb)...)
			} else {
				cleaned = append(cleaned, model.Interval{Start: prev.Start, End: sl.End})
			}
		} else {
			cleaned = append(cleaned, sl)
		}
	}

	var out []model.Interval
	for _, sl := range cleaned {
		if sl.End-sl.Start >= 0.5 {
			out = append(out, model.Interval{Start: round3(sl.Start), End: round3(sl.End)})
		}
	}
	return out
}

// splitOne cuts a single over-maximum span into chunks near the target
// length. Each introduced cut is pulled back when the remainder would be
// under the minimum, and clamped at least 0.5s from both edges.
func splitOne(sl model.Interval, nb Bounds) []model.Interval {
	var out []model.Interval
	s, e := sl.Start, sl.End
	for e-s > nb.Max+1e-6 {
		nxt := s + nb.Target
		if e-nxt < nb.Min {
			nxt = e - nb.Min
		}
		nxt = math.Max(s+0.5, math.Min(nxt, e-0.5))
		out = append(out, model.Interval{Start: s, End: nxt})
		s = nxt
	}
	out = append(out, model.Interval{Start: s, End: e})
	return out
}

// WindowClips carves capture windows out of final shots. A shot already
// within the max bound becomes exactly one clip spanning the whole shot;
// longer shots are windowed at target length, with the final window
// extended to the shot end when the remainder would be under the
// minimum. Shot ids are assigned sequentially in input order; windows
// never define shot boundaries.
func WindowClips(shotSpans []model.Interval, b Bounds) []model.Clip {
	nb := b.normalized()
	var out []model.Clip
	shotID := 0
	for _, sh := range shotSpans {
		ss, se := sh.Start, sh.End
		if se <= ss+0.2 {
			continue
		}
		if se-ss <= nb.Max+1e-6 {
			out = append(out, model.Clip{Start: ss, End: se, ShotID: shotID, ShotStart: ss, ShotEnd: se})
			shotID++
			continue
		}
		t := ss
		for t+nb.Min <= se+1e-6 {
			e := math.Min(se, t+nb.Target)
			if se-e < nb.Min {
				e = se
			}
			out = append(out, model.Clip{Start: t, End: e, ShotID: shotID, ShotStart: ss, ShotEnd: se})
			t = e
			if se-t < 1e-3 {
				break
			}
		}
		shotID++
	}
	return out
}

// PickFrameTimes returns n sampling timestamps spread evenly inside
// (start, end), never touching the edges where transition artifacts
// live. n <= 1 samples the midpoint.
func PickFrameTimes(start, end float64, n int) []float64 {
	if n <= 1 {
		return []float64{(start + end) / 2}
	}
	span := math.Max(1e-6, end-start)
	out := make([]float64, 0, n)
	for k := 1; k <= n; k++ {
		out = append(out, start+span*float64(k)/float64(n+1))
	}
	return out
}
