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

package align

import (
	"math"

	"github.com/muziris/go-gist-video/internal/core/model"
)

// SnapToFrameGrid snaps unit boundaries onto a fixed output frame grid.
//
// Frame-based segment rendering rounds every segment to whole frames; if
// the boundaries are not snapped first, sub-frame rounding errors
// accumulate over a long timeline until cut points drift into
// mid-sentence. Snapping once, globally, keeps every cut where alignment
// put it.
//
// fps is clamped to [10, 60] (non-positive means 25). The total frame
// count is the ceiling of totalDur*fps, so the video never comes up
// shorter than the narration. Every unit keeps at least one frame, frame
// boundaries are strictly increasing, and the final boundary lands
// exactly on the total frame count.
//
// Returns the snapped intervals and the per-unit frame counts the
// renderer must cut.
func SnapToFrameGrid(times []model.Interval, fps int, totalDur float64) ([]model.Interval, []int) {
	if len(times) == 0 {
		return nil, nil
	}
	if fps <= 0 {
		fps = 25
	}
	fps = max(10, min(60, fps))
	totalDur = math.Max(0, totalDur)
	totalFrames := max(1, int(totalDur*float64(fps)+0.999999))

	n := len(times)
	ends := make([]float64, n)
	for i, iv := range times {
		ends[i] = math.Max(0, math.Min(totalDur, iv.End))
	}
	ends[n-1] = totalDur

	endFrames := make([]int, n)
	for i, t := range ends {
		endFrames[i] = int(math.Round(t * float64(fps)))
	}
	// Forward pass: strictly increasing, with room reserved for the
	// units still to come.
	for i := 0; i < n; i++ {
		minF := 1
		if i > 0 {
			minF = endFrames[i-1] + 1
		}
		maxF := totalFrames - (n - i - 1)
		endFrames[i] = max(minF, min(endFrames[i], maxF))
	}
	endFrames[n-1] = totalFrames
	// Backward pass: re-tighten after pinning the last boundary.
	for i := n - 2; i >= 0; i-- {
		endFrames[i] = min(endFrames[i], endFrames[i+1]-1)
	}
	endFrames[0] = max(1, min(endFrames[0], totalFrames-(n-1)))

	snapped := make([]model.Interval, n)
	framesPer := make([]int, n)
	startFrame := 0
	for i, e := range endFrames {
		framesPer[i] = max(1, e-startFrame)
		snapped[i] = model.Interval{
			Start: float64(startFrame) / float64(fps),
			End:   float64(e) / float64(fps),
		}
		startFrame = e
	}
	return snapped, framesPer
}
