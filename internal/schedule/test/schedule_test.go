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

// Package schedule_test contains unit tests for the narration-to-shot
// scheduler.
package schedule_test

import (
	"context"
	"testing"

	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/muziris/go-gist-video/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture builds a clip table where each shot is one whole-shot clip,
// with vectors from the offline embedder so query similarity is real.
func fixture(t *testing.T, clips []model.Clip) ([]model.Clip, [][]float32, embed.Provider) {
	t.Helper()
	p := embed.NewLocalHashProvider(0)
	texts := make([]string, len(clips))
	for i, c := range clips {
		texts[i] = c.Text
	}
	vecs, err := p.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	return clips, vecs, p
}

func wholeShotClip(src string, sid int, s, e float64, text string, flags ...string) model.Clip {
	return model.Clip{
		ClipID: "c", SourcePath: src, ShotID: sid,
		Start: s, End: e, ShotStart: s, ShotEnd: e,
		Text: text, Flags: flags,
	}
}

// TestPickSegmentsCoverage verifies the core contract: one segment per
// unit, duration equal to the narration duration, and every segment
// inside its shot.
func TestPickSegmentsCoverage(t *testing.T) {
	clips, vecs, p := fixture(t, []model.Clip{
		wholeShotClip("a.mp4", 0, 0, 5, "男人走进昏暗的房间"),
		wholeShotClip("a.mp4", 1, 5, 10, "窗外下着大雨"),
		wholeShotClip("b.mp4", 0, 0, 6, "桌上放着一本笔记"),
	})
	units := []schedule.Unit{
		{Text: "他走进房间", Start: 0, End: 2.0},
		{Text: "外面下雨了", Start: 2.0, End: 4.5},
		{Text: "他看到笔记", Start: 4.5, End: 6.0},
	}

	segs, err := schedule.PickSegments(context.Background(), units, clips, vecs, p, schedule.Options{})
	require.NoError(t, err)
	require.Len(t, segs, len(units))

	for i, s := range segs {
		assert.Equal(t, i, s.UnitIdx)
		assert.InDelta(t, units[i].End-units[i].Start, s.Dur, 1e-9)
		assert.InDelta(t, s.Dur, s.Out-s.In, 1e-9)
		assert.GreaterOrEqual(t, s.In, s.ShotStart-1e-9)
		assert.LessOrEqual(t, s.Out, s.ShotEnd+1e-9)
	}
}

// TestPickSegmentsNovelty verifies the shot cooldown: two adjacent
// units with identical text land in different shots.
func TestPickSegmentsNovelty(t *testing.T) {
	clips, vecs, p := fixture(t, []model.Clip{
		wholeShotClip("a.mp4", 0, 0, 5, "男人走进昏暗的房间"),
		wholeShotClip("a.mp4", 1, 5, 10, "男人走进昏暗的房间里面"),
	})
	units := []schedule.Unit{
		{Text: "男人走进房间", Start: 0, End: 2},
		{Text: "男人走进房间", Start: 2, End: 4},
	}

	segs, err := schedule.PickSegments(context.Background(), units, clips, vecs, p, schedule.Options{})
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.NotEqual(t, segs[0].ShotID, segs[1].ShotID)
	assert.Equal(t, 1, segs[0].Tier)
	assert.Equal(t, 1, segs[1].Tier)
}

// TestPickSegmentsKeywordPreference verifies candidates with keyword
// hits win over hitless ones even when raw similarity disagrees.
func TestPickSegmentsKeywordPreference(t *testing.T) {
	clips, vecs, p := fixture(t, []model.Clip{
		wholeShotClip("a.mp4", 0, 0, 5, "他拔出手枪对准了门口"),
		wholeShotClip("a.mp4", 1, 5, 10, "男人坐在椅子上发呆思考"),
	})
	units := []schedule.Unit{{
		Text:  "男人坐着思考",
		Hints: []string{"手枪"},
		Start: 0, End: 2,
	}}

	segs, err := schedule.PickSegments(context.Background(), units, clips, vecs, p, schedule.Options{KeywordBoost: 0.05})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 0, segs[0].ShotID)
	assert.Equal(t, 1, segs[0].Hit)
}

// TestPickSegmentsSubtitleHeavyPenalty verifies the flag penalty can
// flip a near-tie away from subtitle-covered footage.
func TestPickSegmentsSubtitleHeavyPenalty(t *testing.T) {
	clips, vecs, p := fixture(t, []model.Clip{
		wholeShotClip("a.mp4", 0, 0, 5, "夜晚的街道空无一人", model.FlagSubtitleHeavy),
		wholeShotClip("a.mp4", 1, 5, 10, "夜晚的街道空无一人"),
	})
	units := []schedule.Unit{{Text: "夜晚的街道", Start: 0, End: 2}}

	segs, err := schedule.PickSegments(context.Background(), units, clips, vecs, p, schedule.Options{SubtitleHeavyPenalty: 0.06})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 1, segs[0].ShotID)
}

// TestPickSegmentsClampLongUnit is the tier-3 path: a unit longer than
// every shot is clamped to the longest shot instead of failing.
func TestPickSegmentsClampLongUnit(t *testing.T) {
	clips, vecs, p := fixture(t, []model.Clip{
		wholeShotClip("a.mp4", 0, 0, 3, "街道"),
		wholeShotClip("a.mp4", 1, 3, 7, "房间"),
	})
	units := []schedule.Unit{{Text: "很长的一句旁白", Start: 0, End: 10}}

	segs, err := schedule.PickSegments(context.Background(), units, clips, vecs, p, schedule.Options{})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 3, segs[0].Tier)
	assert.Equal(t, 1, segs[0].ShotID) // the longer shot
	assert.InDelta(t, 4.0, segs[0].Dur, 1e-9)
}

// TestPickSegmentsSameSourceGap verifies a segment landing too close
// behind the previous one from the same source is shifted forward
// inside its shot.
func TestPickSegmentsSameSourceGap(t *testing.T) {
	clips, vecs, p := fixture(t, []model.Clip{
		wholeShotClip("a.mp4", 0, 0, 4, "他拔出手枪瞄准"),
		wholeShotClip("a.mp4", 1, 4, 8, "森林里雾气弥漫"),
	})
	units := []schedule.Unit{
		{Text: "第一段", Hints: []string{"手枪"}, Start: 0, End: 3.5},
		{Text: "第二段", Hints: []string{"森林"}, Start: 3.5, End: 7.0},
	}

	segs, err := schedule.PickSegments(context.Background(), units, clips, vecs, p, schedule.Options{})
	require.NoError(t, err)
	require.Len(t, segs, 2)

	// Unit 1 centers on shot 0's midpoint: in 0.25, out 3.75.
	assert.InDelta(t, 0.25, segs[0].In, 1e-9)
	assert.InDelta(t, 3.75, segs[0].Out, 1e-9)
	// Unit 2's midpoint placement (in 4.25) violates the 0.8s gap, so
	// it shifts to 4.55 and clamps to the shot end minus the duration.
	assert.InDelta(t, 4.5, segs[1].In, 1e-9)
	assert.InDelta(t, 8.0, segs[1].Out, 1e-9)
}

// TestPickSegmentsDeterministic verifies repeated runs over the same
// inputs produce identical timelines.
func TestPickSegmentsDeterministic(t *testing.T) {
	clips, vecs, p := fixture(t, []model.Clip{
		wholeShotClip("b.mp4", 0, 0, 6, "城市夜景"),
		wholeShotClip("a.mp4", 0, 0, 6, "城市夜景"),
		wholeShotClip("a.mp4", 1, 6, 12, "城市夜景"),
	})
	units := []schedule.Unit{
		{Text: "夜景", Start: 0, End: 2},
		{Text: "夜景", Start: 2, End: 4},
		{Text: "夜景", Start: 4, End: 6},
	}

	first, err := schedule.PickSegments(context.Background(), units, clips, vecs, p, schedule.Options{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := schedule.PickSegments(context.Background(), units, clips, vecs, p, schedule.Options{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// TestPickSegmentsDimMismatch verifies the vector-space guard.
func TestPickSegmentsDimMismatch(t *testing.T) {
	clips := []model.Clip{wholeShotClip("a.mp4", 0, 0, 5, "房间")}
	p := embed.NewLocalHashProvider(0)
	_, err := schedule.PickSegments(context.Background(), []schedule.Unit{{Text: "房间", Start: 0, End: 1}},
		clips, [][]float32{{0.1, 0.2}}, p, schedule.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dim mismatch")
}

// TestPickSegmentsCanceled verifies cooperative cancellation surfaces
// as the context error.
func TestPickSegmentsCanceled(t *testing.T) {
	clips, vecs, p := fixture(t, []model.Clip{wholeShotClip("a.mp4", 0, 0, 5, "房间")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := schedule.PickSegments(ctx, []schedule.Unit{{Text: "房间", Start: 0, End: 1}}, clips, vecs, p, schedule.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
