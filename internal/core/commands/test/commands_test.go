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

// Package commands_test covers the render-side commands end to end on
// fixture data, plus the slicing and embedding commands that need no
// external binaries. Commands that shell out to ffmpeg are covered
// through the parsing layer in the media package tests.
package commands_test

import (
	goctx "context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muziris/go-gist-video/internal/core/commands"
	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/muziris/go-gist-video/internal/index"
	"github.com/muziris/go-gist-video/internal/schedule"
	"github.com/muziris/go-gist-video/internal/shots"
	"github.com/muziris/go-gist-video/internal/subtitles"
	"github.com/muziris/go-gist-video/internal/testutil"
	"github.com/muziris/go-gist-video/internal/timing"
)

const testDim = 64

// newChainContext builds a chain context with a background Go context,
// the way the workflows do before handing it to a chain.
func newChainContext(t *testing.T) cor.Context {
	t.Helper()
	ctx := cor.NewBaseContext()
	t.Cleanup(ctx.Close)
	ctx.SetContext(goctx.Background())
	return ctx
}

// loadFixtureWords parses the speech-mark fixture into word tokens.
func loadFixtureWords(t *testing.T) []model.WordToken {
	t.Helper()
	words, _, err := timing.ParseSpeechMarks(strings.NewReader(testutil.GetTestSpeechMarksText()))
	require.NoError(t, err)
	require.Len(t, words, 6)
	return words
}

// writeFixtureIndex persists the fixture clip table as a loadable index
// artifact and returns its directory.
func writeFixtureIndex(t *testing.T) string {
	t.Helper()
	clips, vecs := testutil.GetTestClipVectors(testDim)
	dir := filepath.Join(t.TempDir(), "index")
	artifact := &model.IndexArtifact{
		CreatedAt: time.Now().Format(time.RFC3339),
		Clips:     clips,
		Embedding: model.EmbeddingMeta{Type: "localhash", Dim: testDim},
	}
	require.NoError(t, index.SaveArtifact(dir, artifact, vecs))
	return dir
}

// alignFixtureScript runs the script aligner on the fixture words and
// returns the populated chain context.
func alignFixtureScript(t *testing.T, req *model.RenderRequest) cor.Context {
	t.Helper()
	ctx := newChainContext(t)
	ctx.Add(commands.GetRenderRequestParamName(), req)
	ctx.Add(commands.GetWordTokensParamName(), loadFixtureWords(t))
	ctx.Add(commands.GetVoiceDurParamName(), 3.2)

	aligner := commands.NewScriptAligner("align-script", 25)
	require.True(t, aligner.IsExecutable(ctx))
	aligner.Execute(ctx)
	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())
	return ctx
}

func TestScriptAlignerBuildsTimingsAndQueries(t *testing.T) {
	req := &model.RenderRequest{
		ProjectName: "demo",
		ScriptText:  "主角走进【森林】。\n夜幕降临了。",
	}
	ctx := alignFixtureScript(t, req)

	timings := ctx.Get(commands.GetUnitTimingsParamName()).([]model.UnitTiming)
	require.Len(t, timings, 2)
	assert.Equal(t, 0.0, timings[0].Start)
	assert.Equal(t, 3.2, timings[1].End)
	for i, ti := range timings {
		assert.GreaterOrEqual(t, ti.Frames, 1, "unit %d", i)
		assert.Less(t, ti.Start, ti.End, "unit %d", i)
	}
	// Units abut: no gaps, no overlaps.
	assert.Equal(t, timings[0].End, timings[1].Start)

	units := ctx.Get(commands.GetScheduleUnitsParamName()).([]schedule.Unit)
	require.Len(t, units, 2)
	assert.Contains(t, units[0].Query, "作品:demo")
	assert.Contains(t, units[0].Query, "森林")
	assert.Contains(t, units[0].Hints, "demo")
}

func TestScriptAlignerRejectsMismatchedScript(t *testing.T) {
	ctx := newChainContext(t)
	ctx.Add(commands.GetRenderRequestParamName(), &model.RenderRequest{
		ProjectName: "demo",
		ScriptText:  "完全不同的台词。",
	})
	ctx.Add(commands.GetWordTokensParamName(), loadFixtureWords(t))
	ctx.Add(commands.GetVoiceDurParamName(), 3.2)

	commands.NewScriptAligner("align-script", 25).Execute(ctx)
	require.True(t, ctx.HasErrors())
}

func TestSegmentSchedulerPicksOneSegmentPerUnit(t *testing.T) {
	indexDir := writeFixtureIndex(t)
	req := &model.RenderRequest{
		ProjectName: "demo",
		ScriptText:  "主角走进森林。\n夜幕降临了。",
		IndexDir:    indexDir,
	}
	ctx := alignFixtureScript(t, req)

	scheduler := commands.NewSegmentScheduler("schedule-segments", schedule.Options{}, embed.NewLocalHashProvider(testDim))
	require.True(t, scheduler.IsExecutable(ctx))
	scheduler.Execute(ctx)
	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())

	segments := ctx.Get(commands.GetSegmentsParamName()).([]model.TimelineSegment)
	require.Len(t, segments, 2)
	for i, seg := range segments {
		assert.Equal(t, i, seg.UnitIdx)
		assert.Greater(t, seg.Dur, 0.0)
		assert.InDelta(t, seg.Out-seg.In, seg.Dur, 1e-9)
	}
}

// hostedStandIn embeds like the local hashing provider but reports a
// hosted backend type, the shape of an index built through the genai
// backend.
type hostedStandIn struct{ inner *embed.LocalHashProvider }

func (h hostedStandIn) EmbedTexts(ctx goctx.Context, texts []string) ([][]float32, error) {
	return h.inner.EmbedTexts(ctx, texts)
}
func (h hostedStandIn) Meta() model.EmbeddingMeta {
	return model.EmbeddingMeta{Type: "genai", ModelID: "stand-in", Dim: h.inner.Dim}
}

// TestSegmentSchedulerUsesConfiguredBackend renders against an index
// whose vectors came from a hosted backend: the scheduler must hand the
// configured provider to the query embedder instead of insisting on the
// local-hash rebuild.
func TestSegmentSchedulerUsesConfiguredBackend(t *testing.T) {
	provider := hostedStandIn{inner: embed.NewLocalHashProvider(testDim)}
	clips, vecs := testutil.GetTestClipVectors(testDim)
	dir := filepath.Join(t.TempDir(), "index")
	artifact := &model.IndexArtifact{
		CreatedAt: time.Now().Format(time.RFC3339),
		Clips:     clips,
		Embedding: provider.Meta(),
	}
	require.NoError(t, index.SaveArtifact(dir, artifact, vecs))

	req := &model.RenderRequest{
		ProjectName: "demo",
		ScriptText:  "主角走进森林。\n夜幕降临了。",
		IndexDir:    dir,
	}
	ctx := alignFixtureScript(t, req)
	commands.NewSegmentScheduler("schedule-segments", schedule.Options{}, provider).Execute(ctx)
	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())

	segments := ctx.Get(commands.GetSegmentsParamName()).([]model.TimelineSegment)
	require.Len(t, segments, 2)
}

func TestSegmentSchedulerMissingIndex(t *testing.T) {
	req := &model.RenderRequest{
		ProjectName: "demo",
		ScriptText:  "主角走进森林。\n夜幕降临了。",
		IndexDir:    filepath.Join(t.TempDir(), "missing"),
	}
	ctx := alignFixtureScript(t, req)
	commands.NewSegmentScheduler("schedule-segments", schedule.Options{}, embed.NewLocalHashProvider(testDim)).Execute(ctx)
	require.True(t, ctx.HasErrors())
}

func TestEdlWriterPersistsAtomically(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	indexDir := writeFixtureIndex(t)
	req := &model.RenderRequest{
		ProjectName: "demo",
		ScriptText:  "主角走进森林。\n夜幕降临了。",
		IndexDir:    indexDir,
		OutDir:      outDir,
	}
	ctx := alignFixtureScript(t, req)
	commands.NewSegmentScheduler("schedule-segments", schedule.Options{}, embed.NewLocalHashProvider(testDim)).Execute(ctx)
	require.False(t, ctx.HasErrors())

	writer := commands.NewEdlWriter("write-edl", 25)
	require.True(t, writer.IsExecutable(ctx))
	writer.Execute(ctx)
	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())

	data, err := os.ReadFile(filepath.Join(outDir, commands.EdlFileName))
	require.NoError(t, err)
	var edl model.EditDecisionList
	require.NoError(t, json.Unmarshal(data, &edl))
	assert.Equal(t, 25, edl.Fps)
	assert.Equal(t, 3.2, edl.VoiceDur)
	require.Len(t, edl.Units, 2)
	require.Len(t, edl.Segments, 2)
	// No temp file left behind.
	_, err = os.Stat(filepath.Join(outDir, commands.EdlFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

// TestIndexWriterRecordsVectorDim verifies metadata arriving without a
// dimension (the hosted backend learns it from the response) gets the
// actual vector width persisted into the artifact.
func TestIndexWriterRecordsVectorDim(t *testing.T) {
	clips, vecs := testutil.GetTestClipVectors(testDim)
	cacheDir := t.TempDir()
	ctx := newChainContext(t)
	ctx.Add(commands.GetClipsParamName(), clips)
	ctx.Add(commands.GetClipVectorsParamName(), vecs)
	ctx.Add(commands.GetEmbeddingMetaParamName(), model.EmbeddingMeta{Type: "genai", ModelID: "text-embedding-004"})
	ctx.Add(commands.GetIndexRequestParamName(), &model.IndexRequest{ProjectName: "demo", CacheDir: cacheDir})

	writer := commands.NewIndexWriter("write-index")
	require.True(t, writer.IsExecutable(ctx))
	writer.Execute(ctx)
	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())

	artifact, gotVecs, err := index.LoadArtifact(filepath.Join(cacheDir, "index"))
	require.NoError(t, err)
	assert.Equal(t, testDim, artifact.Embedding.Dim)
	assert.Equal(t, vecs, gotVecs)
}

func TestSubtitleWriterEmitsTrack(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	req := &model.RenderRequest{
		ProjectName: "demo",
		ScriptText:  "主角走进【森林】。\n夜幕降临了。",
		OutDir:      outDir,
	}
	ctx := alignFixtureScript(t, req)

	writer := commands.NewSubtitleWriter("write-subtitles", subtitles.Style{PlayResX: 1920, PlayResY: 1080})
	require.True(t, writer.IsExecutable(ctx))
	writer.Execute(ctx)
	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())

	data, err := os.ReadFile(filepath.Join(outDir, commands.SubtitleFileName))
	require.NoError(t, err)
	track := string(data)
	assert.Contains(t, track, "[Events]")
	assert.Contains(t, track, "主角走进森林")
	assert.Contains(t, track, "夜幕降临了")
}

func TestShotSlicerFixedMode(t *testing.T) {
	slicer := commands.NewShotSlicer(
		"slice-shots", nil, "fixed",
		0.35, 4.0, 4.0, 0, 0,
		shots.Bounds{Min: 3.0, Target: 4.5, Max: 6.0})

	ctx := newChainContext(t)
	ctx.Add(cor.CtxIn, []model.VideoAsset{
		{Index: 1, SourcePath: "a.mp4", ProxyPath: "a-proxy.mp4", Duration: 20.0, CacheDir: t.TempDir()},
	})
	slicer.Execute(ctx)
	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())

	clips := ctx.Get(commands.GetClipsParamName()).([]model.Clip)
	require.NotEmpty(t, clips)
	assert.Equal(t, "v0001_c00000", clips[0].ClipID)
	for i, c := range clips {
		assert.Equal(t, "a.mp4", c.SourcePath)
		assert.GreaterOrEqual(t, c.Dur(), 3.0, "clip %d", i)
		assert.LessOrEqual(t, c.Dur(), 6.0+1e-9, "clip %d", i)
	}
}

// failingProvider always errors, to exercise the embedder's fallback.
type failingProvider struct{}

func (failingProvider) EmbedTexts(goctx.Context, []string) ([][]float32, error) {
	return nil, errors.New("backend unavailable")
}
func (failingProvider) Meta() model.EmbeddingMeta {
	return model.EmbeddingMeta{Type: "broken", Dim: 0}
}

func TestClipEmbedderFallsBackToLocalHash(t *testing.T) {
	clips := testutil.GetTestClips()
	ctx := newChainContext(t)
	ctx.Add(cor.CtxIn, clips)

	embedder := commands.NewClipEmbedder("embed-clips", failingProvider{}, testDim)
	embedder.Execute(ctx)
	require.False(t, ctx.HasErrors(), "errors: %v", ctx.GetErrors())

	vecs := ctx.Get(commands.GetClipVectorsParamName()).([][]float32)
	require.Len(t, vecs, len(clips))
	meta := ctx.Get(commands.GetEmbeddingMetaParamName()).(model.EmbeddingMeta)
	assert.Equal(t, "localhash", meta.Type)
	assert.Equal(t, testDim, meta.Dim)

	// Deterministic: the fallback reproduces the fixture vectors.
	_, want := testutil.GetTestClipVectors(testDim)
	assert.Equal(t, want, vecs)
}

func TestClipEmbedderUsesPrimaryProvider(t *testing.T) {
	clips := testutil.GetTestClips()
	ctx := newChainContext(t)
	ctx.Add(cor.CtxIn, clips)

	embedder := commands.NewClipEmbedder("embed-clips", embed.NewLocalHashProvider(testDim), testDim)
	embedder.Execute(ctx)
	require.False(t, ctx.HasErrors())
	meta := ctx.Get(commands.GetEmbeddingMetaParamName()).(model.EmbeddingMeta)
	assert.Equal(t, "localhash", meta.Type)
}
