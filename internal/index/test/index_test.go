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

// Package index_test contains unit tests for shot reconstruction,
// content filtering, and artifact persistence.
package index_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/muziris/go-gist-video/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clip(src string, shotID int, s, e, ss, se float64) model.Clip {
	return model.Clip{SourcePath: src, ShotID: shotID, Start: s, End: e, ShotStart: ss, ShotEnd: se}
}

// TestBuildShotIndexWidestBounds verifies clips of one shot merge into
// a single record with the widest observed bounds and ordered clip
// indices.
func TestBuildShotIndexWidestBounds(t *testing.T) {
	clips := []model.Clip{
		clip("a.mp4", 0, 0, 4.5, 0, 11),
		clip("a.mp4", 0, 4.5, 11, 0, 11),
		clip("a.mp4", 1, 11, 15, 11, 15),
	}
	si, err := index.BuildShotIndex(clips)
	require.NoError(t, err)
	require.Equal(t, 2, si.Len())

	sh := si.Get(index.ShotKey{SourcePath: "a.mp4", ShotID: 0})
	require.NotNil(t, sh)
	assert.Equal(t, 0.0, sh.Start)
	assert.Equal(t, 11.0, sh.End)
	assert.Equal(t, []int{0, 1}, sh.ClipIdxs)
}

// TestBuildShotIndexDegenerateBounds verifies a clip with collapsed
// shot bounds falls back to its own span.
func TestBuildShotIndexDegenerateBounds(t *testing.T) {
	si, err := index.BuildShotIndex([]model.Clip{clip("a.mp4", 3, 2.0, 5.0, 0, 0)})
	require.NoError(t, err)
	sh := si.Get(index.ShotKey{SourcePath: "a.mp4", ShotID: 3})
	require.NotNil(t, sh)
	assert.Equal(t, 2.0, sh.Start)
	assert.Equal(t, 5.0, sh.End)
}

// TestBuildShotIndexConsistency verifies malformed clip records fail
// the whole build with diagnostics instead of being skipped.
func TestBuildShotIndexConsistency(t *testing.T) {
	_, err := index.BuildShotIndex([]model.Clip{clip("", 0, 0, 1, 0, 1)})
	var ce *index.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, ce.ClipIdx)

	bad := clip("a.mp4", -1, 0, 1, 0, 1)
	bad.ClipID = "v0001_c00007"
	_, err = index.BuildShotIndex([]model.Clip{clip("a.mp4", 0, 0, 1, 0, 1), bad})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.ClipIdx)
	assert.Contains(t, ce.Error(), "v0001_c00007")
}

// TestBuildShotIndexKeyOrder verifies the key order is sorted by
// source path then shot id, independent of clip order.
func TestBuildShotIndexKeyOrder(t *testing.T) {
	si, err := index.BuildShotIndex([]model.Clip{
		clip("b.mp4", 1, 0, 1, 0, 1),
		clip("a.mp4", 2, 0, 1, 0, 1),
		clip("b.mp4", 0, 2, 3, 2, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, []index.ShotKey{
		{SourcePath: "a.mp4", ShotID: 2},
		{SourcePath: "b.mp4", ShotID: 0},
		{SourcePath: "b.mp4", ShotID: 1},
	}, si.Keys())
}

// TestFilterBlocked verifies flagged clips and their vector rows drop
// together, and the all-blocked case is an error.
func TestFilterBlocked(t *testing.T) {
	clips := []model.Clip{
		clip("a.mp4", 0, 0, 3, 0, 3),
		clip("a.mp4", 1, 3, 6, 3, 6),
	}
	clips[1].Flags = []string{model.FlagAd}
	vecs := [][]float32{{1}, {2}}

	kept, keptVecs, dropped, err := index.FilterBlocked(clips, vecs)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 1)
	assert.Equal(t, 0, kept[0].ShotID)
	assert.Equal(t, [][]float32{{1}}, keptVecs)

	clips[0].Flags = []string{model.FlagIntro}
	_, _, _, err = index.FilterBlocked(clips, vecs)
	assert.ErrorIs(t, err, index.ErrAllClipsBlocked)
}

// TestProviderForArtifact verifies backend dispatch from the recorded
// metadata.
func TestProviderForArtifact(t *testing.T) {
	p, err := index.ProviderForArtifact(model.EmbeddingMeta{Type: "localhash", Dim: 128}, nil)
	require.NoError(t, err)
	lh, ok := p.(*embed.LocalHashProvider)
	require.True(t, ok)
	assert.Equal(t, 128, lh.Dim)

	// An unknown backend with no configured fallback is fatal.
	_, err = index.ProviderForArtifact(model.EmbeddingMeta{Type: "genai", ModelID: "text-embedding-004"}, nil)
	require.Error(t, err)

	// A fallback of a different type is rejected.
	_, err = index.ProviderForArtifact(model.EmbeddingMeta{Type: "genai"}, embed.NewLocalHashProvider(512))
	require.Error(t, err)

	// A hosted index is served by the configured provider of the same
	// backend type.
	hosted := &embed.QuotaAwareEmbeddingModel{ModelName: "text-embedding-004"}
	p, err = index.ProviderForArtifact(model.EmbeddingMeta{Type: "genai", ModelID: "text-embedding-004", Dim: 768}, hosted)
	require.NoError(t, err)
	assert.Same(t, hosted, p)
}

// TestCheckDims verifies the dimension-drift guard.
func TestCheckDims(t *testing.T) {
	assert.NoError(t, index.CheckDims([][]float32{{1, 2}}, [][]float32{{3, 4}}))
	assert.Error(t, index.CheckDims([][]float32{{1, 2}}, [][]float32{{3}}))
	assert.NoError(t, index.CheckDims(nil, [][]float32{{3}}))
}

// TestArtifactRoundTrip verifies save/load preserves the clip table and
// vectors, and that row/clip count drift is detected.
func TestArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	art := &model.IndexArtifact{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Clips: []model.Clip{
			{ClipID: "v0001_c00000", SourcePath: "a.mp4", Start: 0, End: 4.5, ShotID: 0, ShotStart: 0, ShotEnd: 4.5, Text: "一个男人走进房间"},
			{ClipID: "v0001_c00001", SourcePath: "a.mp4", Start: 4.5, End: 9, ShotID: 1, ShotStart: 4.5, ShotEnd: 9, Flags: []string{model.FlagSubtitleHeavy}},
		},
		Embedding: model.EmbeddingMeta{Type: "localhash", Dim: 3},
	}
	vecs := [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}

	require.NoError(t, index.SaveArtifact(dir, art, vecs))

	got, gotVecs, err := index.LoadArtifact(dir)
	require.NoError(t, err)
	assert.Equal(t, art.Clips, got.Clips)
	assert.Equal(t, art.Embedding, got.Embedding)
	assert.Equal(t, vecs, gotVecs)

	// Mismatched row count is rejected at save time.
	err = index.SaveArtifact(dir, art, vecs[:1])
	require.Error(t, err)
}

// TestLoadArtifactMissing verifies a never-indexed directory fails with
// a file-not-found error.
func TestLoadArtifactMissing(t *testing.T) {
	_, _, err := index.LoadArtifact(t.TempDir())
	require.Error(t, err)
}

// TestLoadArtifactRejectsCorruptHeader verifies a vector file whose
// header claims an absurd row count fails fast instead of allocating
// for rows the file cannot hold.
func TestLoadArtifactRejectsCorruptHeader(t *testing.T) {
	dir := t.TempDir()
	art := &model.IndexArtifact{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Clips:     []model.Clip{{ClipID: "v0001_c00000", SourcePath: "a.mp4", Start: 0, End: 1, ShotStart: 0, ShotEnd: 1}},
		Embedding: model.EmbeddingMeta{Type: "localhash", Dim: 2},
	}
	require.NoError(t, index.SaveArtifact(dir, art, [][]float32{{1, 2}}))

	// Rewrite the vector header: magic, then rows and cols as LE uint32.
	buf := make([]byte, 12)
	copy(buf, "CVF1")
	binary.LittleEndian.PutUint32(buf[4:], math.MaxUint32)
	binary.LittleEndian.PutUint32(buf[8:], 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, index.VectorsFileName), buf, 0o644))

	_, _, err := index.LoadArtifact(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row count")
}
