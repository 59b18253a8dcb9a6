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

// Package shots_test contains unit tests for shot normalization and clip
// windowing.
package shots_test

import (
	"testing"

	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/shots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bounds = shots.Bounds{Min: 3.0, Target: 4.5, Max: 6.0}

func iv(s, e float64) model.Interval { return model.Interval{Start: s, End: e} }

// TestRawSlices verifies edge-noise cuts are ignored and sub-half-second
// spans dropped.
func TestRawSlices(t *testing.T) {
	got := shots.RawSlices([]float64{0.02, 4.0, 4.2, 9.99}, 10.0)
	assert.Equal(t, []model.Interval{iv(0, 4.0), iv(4.2, 10.0)}, got)

	// The 0.2s gap between 4.0 and 4.2 is gone, not merged.
	got = shots.RawSlices(nil, 10.0)
	assert.Equal(t, []model.Interval{iv(0, 10.0)}, got)
}

// TestFixedSlices verifies the degraded-input fallback slicing.
func TestFixedSlices(t *testing.T) {
	got := shots.FixedSlices(10.0, 4.0)
	assert.Equal(t, []model.Interval{iv(0, 4), iv(4, 8), iv(8, 10)}, got)

	// A 0.3s tail is dropped.
	got = shots.FixedSlices(8.3, 4.0)
	assert.Equal(t, []model.Interval{iv(0, 4), iv(4, 8)}, got)
}

// TestClampSlices verifies head/tail trimming with the keep threshold.
func TestClampSlices(t *testing.T) {
	in := []model.Interval{iv(0, 5), iv(5, 12), iv(12, 20)}
	got := shots.ClampSlices(in, 4.8, 14, 0.5)
	assert.Equal(t, []model.Interval{iv(5, 12), iv(12, 14)}, got)
}

// TestNormalizeSlicesMergeForward verifies sub-minimum spans merge into
// their successor and a short trailing span merges backward.
func TestNormalizeSlicesMergeForward(t *testing.T) {
	in := []model.Interval{iv(0, 1.0), iv(1.0, 5.0), iv(5.0, 6.5)}
	got := shots.NormalizeSlices(in, bounds)
	// 0-1 merges forward into 1-5, the 1.5s tail merges backward, and the
	// resulting 6.5s span re-splits under max with the remainder pullback
	// (4.5 would strand 2.0s < min, so the cut lands at 3.5).
	require.Len(t, got, 2)
	assert.Equal(t, iv(0, 3.5), got[0])
	assert.Equal(t, iv(3.5, 6.5), got[1])
}

// TestNormalizeSlicesSplitLong verifies over-maximum spans split near the
// target with the remainder pullback, and every output span obeys the
// bounds.
func TestNormalizeSlicesSplitLong(t *testing.T) {
	got := shots.NormalizeSlices([]model.Interval{iv(0, 14.0)}, bounds)
	require.NotEmpty(t, got)
	for i, sl := range got {
		d := sl.End - sl.Start
		assert.GreaterOrEqual(t, d, bounds.Min-1e-9, "span %d too short", i)
		assert.LessOrEqual(t, d, bounds.Max+1e-9, "span %d too long", i)
		if i > 0 {
			assert.Equal(t, got[i-1].End, sl.Start)
		}
	}
	assert.InDelta(t, 0.0, got[0].Start, 1e-9)
	assert.InDelta(t, 14.0, got[len(got)-1].End, 1e-9)
}

// TestNormalizeSlicesShortWhole is the sub-minimum single-span case: a
// 2s video with min=3 stays one 2s shot rather than failing.
func TestNormalizeSlicesShortWhole(t *testing.T) {
	got := shots.NormalizeSlices([]model.Interval{iv(0, 2.0)}, bounds)
	require.Len(t, got, 1)
	assert.Equal(t, iv(0, 2.0), got[0])
}

// TestWindowClipsWholeShot verifies a shot within max stays one clip and
// shot ids are sequential.
func TestWindowClipsWholeShot(t *testing.T) {
	clips := shots.WindowClips([]model.Interval{iv(0, 5), iv(5, 10.5)}, bounds)
	require.Len(t, clips, 2)
	assert.Equal(t, 0, clips[0].ShotID)
	assert.Equal(t, 1, clips[1].ShotID)
	assert.Equal(t, 0.0, clips[0].Start)
	assert.Equal(t, 5.0, clips[0].End)
	assert.Equal(t, 5.0, clips[0].ShotEnd)
}

// TestWindowClipsLongShot verifies windows inside a long shot: target
// sized, final window absorbing a sub-minimum remainder, all sharing the
// shot's bounds and id.
func TestWindowClipsLongShot(t *testing.T) {
	clips := shots.WindowClips([]model.Interval{iv(0, 11.0)}, bounds)
	require.Len(t, clips, 2)
	for _, c := range clips {
		assert.Equal(t, 0, c.ShotID)
		assert.Equal(t, 0.0, c.ShotStart)
		assert.Equal(t, 11.0, c.ShotEnd)
		assert.GreaterOrEqual(t, c.Start, c.ShotStart)
		assert.LessOrEqual(t, c.End, c.ShotEnd)
	}
	// 0-4.5, then 4.5-11 (remainder 2.0 after a second 4.5 window would
	// be under min, so the second window extends to the shot end).
	assert.InDelta(t, 4.5, clips[0].End, 1e-9)
	assert.InDelta(t, 11.0, clips[1].End, 1e-9)
}

// TestPickFrameTimes verifies midpoint sampling and even interior
// spacing.
func TestPickFrameTimes(t *testing.T) {
	assert.Equal(t, []float64{2.0}, shots.PickFrameTimes(1, 3, 1))

	got := shots.PickFrameTimes(0, 4, 3)
	require.Len(t, got, 3)
	assert.InDelta(t, 1.0, got[0], 1e-9)
	assert.InDelta(t, 2.0, got[1], 1e-9)
	assert.InDelta(t, 3.0, got[2], 1e-9)
}
