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

// Package align_test contains unit tests for script-to-word alignment,
// the duration-weighted partition path, and FPS-grid snapping.
package align_test

import (
	"testing"

	"github.com/muziris/go-gist-video/internal/align"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func w(text string, start, end float64) model.WordToken {
	return model.WordToken{Text: text, Start: start, End: end}
}

// TestAlignExactPartition is the canonical case: units cleanly partition
// the word stream, so the intervals reproduce the word boundaries, with
// the outer edges pinned to 0 and the audio duration.
func TestAlignExactPartition(t *testing.T) {
	words := []model.WordToken{w("你好", 0.0, 0.5), w("世界", 0.5, 1.2)}
	units := []string{"你好，", "世界。"}

	ivs, err := align.AlignUnitsToWords(words, units, 1.2)
	require.NoError(t, err)
	require.Len(t, ivs, 2)
	assert.InDelta(t, 0.0, ivs[0].Start, 1e-9)
	assert.InDelta(t, 0.5, ivs[0].End, 1e-9)
	assert.InDelta(t, 0.5, ivs[1].Start, 1e-9)
	assert.InDelta(t, 1.2, ivs[1].End, 1e-9)
}

// TestAlignTotality checks the totality property: one interval per unit,
// contiguous with no gaps or overlaps, spanning [0, totalDur] exactly.
func TestAlignTotality(t *testing.T) {
	words := []model.WordToken{
		w("他", 0.10, 0.30), w("醒来", 0.30, 0.80), w("了", 0.80, 0.95),
		w("房间", 1.20, 1.60), w("很", 1.60, 1.75), w("暗", 1.75, 2.10),
	}
	units := []string{"他醒来了，", "房间很暗。"}

	ivs, err := align.AlignUnitsToWords(words, units, 2.5)
	require.NoError(t, err)
	require.Len(t, ivs, len(units))

	assert.InDelta(t, 0.0, ivs[0].Start, 1e-9)
	assert.InDelta(t, 2.5, ivs[len(ivs)-1].End, 1e-9)
	for i := 0; i < len(ivs); i++ {
		assert.LessOrEqual(t, ivs[i].Start, ivs[i].End)
		if i > 0 {
			assert.InDelta(t, ivs[i-1].End, ivs[i].Start, 1e-9, "gap or overlap at %d", i)
		}
	}
	// The residual gap between 了(0.95) and 房间(1.20) closes at its
	// midpoint.
	assert.InDelta(t, 1.075, ivs[0].End, 1e-9)
}

// TestAlignMismatch checks the strictness property: a single substituted
// character yields a MismatchError with diagnostics, never a partial
// result.
func TestAlignMismatch(t *testing.T) {
	words := []model.WordToken{w("你好", 0, 0.5), w("世界", 0.5, 1.2)}

	_, err := align.AlignUnitsToWords(words, []string{"你好，", "世间。"}, 1.2)
	require.Error(t, err)
	var me *align.MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 3, me.Offset)
	assert.Contains(t, me.ScriptSnippet, "间")
	assert.Contains(t, me.SpokenSnippet, "界")

	// An extra character fails the same way.
	_, err = align.AlignUnitsToWords(words, []string{"你好，", "大世界。"}, 1.2)
	assert.ErrorAs(t, err, &me)
}

// TestAlignPunctuationOnlyUnit verifies the up-front rejection of units
// that clean to nothing.
func TestAlignPunctuationOnlyUnit(t *testing.T) {
	words := []model.WordToken{w("你好", 0, 0.5)}
	_, err := align.AlignUnitsToWords(words, []string{"你好", "……"}, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "punctuation")
}

// TestAlignNoWords verifies the empty-word-stream sentinel.
func TestAlignNoWords(t *testing.T) {
	_, err := align.AlignUnitsToWords(nil, []string{"你好"}, 1.0)
	assert.ErrorIs(t, err, align.ErrNoWordTimings)
}

// TestAlignSplitInsideWord verifies boundary placement when a unit
// boundary falls inside one spoken word: the whole word goes to the unit
// that started it, and the midpoint rule shares the boundary.
func TestAlignSplitInsideWord(t *testing.T) {
	words := []model.WordToken{w("你好世", 0, 0.9), w("界", 0.9, 1.2)}
	units := []string{"你好", "世界"}

	ivs, err := align.AlignUnitsToWords(words, units, 1.2)
	require.NoError(t, err)
	require.Len(t, ivs, 2)
	assert.InDelta(t, 0.0, ivs[0].Start, 1e-9)
	assert.InDelta(t, 1.2, ivs[1].End, 1e-9)
	assert.InDelta(t, ivs[0].End, ivs[1].Start, 1e-9)
}

// TestPartitionWordsByWeights verifies the DP partition approximates
// weight-proportional durations and degenerates safely when there are
// more weights than words.
func TestPartitionWordsByWeights(t *testing.T) {
	words := []model.WordToken{
		w("一", 0.0, 1.0), w("二", 1.0, 2.0), w("三", 2.0, 3.0), w("四", 3.0, 4.0),
	}
	// Equal weights over 4s: expect two groups of two words.
	groups := align.PartitionWordsByWeights(words, []int{1, 1}, 4.0)
	require.Len(t, groups, 2)
	assert.Equal(t, [2]int{0, 2}, groups[0])
	assert.Equal(t, [2]int{2, 4}, groups[1])

	// More weights than words: one word per group.
	groups = align.PartitionWordsByWeights(words[:2], []int{3, 1, 2}, 2.0)
	require.Len(t, groups, 2)
	assert.Equal(t, [2]int{0, 1}, groups[0])
	assert.Equal(t, [2]int{1, 2}, groups[1])

	assert.Nil(t, align.PartitionWordsByWeights(nil, []int{1}, 1.0))
	assert.Nil(t, align.PartitionWordsByWeights(words, nil, 1.0))
}

// TestBuildUnitsFromMarks exercises the sentence-container path: lines
// split within each sentence, timed by word groups, monotone with the
// 20ms floor.
func TestBuildUnitsFromMarks(t *testing.T) {
	words := []model.WordToken{
		w("你好", 0.0, 0.5), w("世界", 0.5, 1.0),
		w("再见", 1.2, 1.7), w("朋友", 1.7, 2.2),
	}
	sents := []model.SentenceToken{
		{Text: "你好世界", Start: 0.0, End: 1.0},
		{Text: "再见朋友", Start: 1.2, End: 2.2},
	}

	units := align.BuildUnitsFromMarks(words, sents, 2)
	require.NotEmpty(t, units)
	prev := 0.0
	for _, u := range units {
		assert.GreaterOrEqual(t, u.Start, prev)
		assert.GreaterOrEqual(t, u.End, u.Start+0.02-1e-9)
		prev = u.End
	}
	// With maxSubChars=2 each sentence splits into its two words.
	require.Len(t, units, 4)
	assert.Equal(t, "你好", units[0].Text)
	assert.Equal(t, "朋友", units[3].Text)
}

// TestSnapToFrameGrid verifies total-frame pinning, the per-unit one
// frame minimum, and strictly increasing boundaries.
func TestSnapToFrameGrid(t *testing.T) {
	times := []model.Interval{
		{Start: 0.0, End: 1.013},
		{Start: 1.013, End: 1.021},
		{Start: 1.021, End: 3.0},
	}
	snapped, frames := align.SnapToFrameGrid(times, 25, 3.0)
	require.Len(t, snapped, 3)
	require.Len(t, frames, 3)

	total := 0
	for i, f := range frames {
		assert.GreaterOrEqual(t, f, 1)
		total += f
		assert.InDelta(t, snapped[i].End-snapped[i].Start, float64(f)/25.0, 1e-9)
		if i > 0 {
			assert.InDelta(t, snapped[i-1].End, snapped[i].Start, 1e-9)
		}
	}
	// ceil(3.0 * 25) == 75 frames, fully covered.
	assert.Equal(t, 75, total)
	assert.InDelta(t, 0.0, snapped[0].Start, 1e-9)
	assert.InDelta(t, 3.0, snapped[2].End, 1e-9)
}

// TestSnapToFrameGridClampsFps verifies the fps clamp and empty input.
func TestSnapToFrameGridClampsFps(t *testing.T) {
	snapped, frames := align.SnapToFrameGrid(nil, 25, 1.0)
	assert.Nil(t, snapped)
	assert.Nil(t, frames)

	// fps 1000 clamps to 60: one unit over one second is 60 frames.
	s, f := align.SnapToFrameGrid([]model.Interval{{Start: 0, End: 1}}, 1000, 1.0)
	require.Len(t, f, 1)
	assert.Equal(t, 60, f[0])
	assert.InDelta(t, 1.0, s[0].End, 1e-9)
}
