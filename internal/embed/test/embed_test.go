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

// Package embed_test contains unit tests for the offline hashing
// embedding backend.
package embed_test

import (
	"context"
	"math"
	"testing"

	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalHashDeterministic verifies the same text always hashes to
// the identical vector, across provider instances.
func TestLocalHashDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := embed.NewLocalHashProvider(0).EmbedTexts(ctx, []string{"他醒来了，房间很暗"})
	require.NoError(t, err)
	b, err := embed.NewLocalHashProvider(0).EmbedTexts(ctx, []string{"他醒来了，房间很暗"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a[0], embed.DefaultLocalHashDim)
}

// TestLocalHashNormalized verifies non-empty texts produce unit-length
// vectors and empty texts produce the zero vector.
func TestLocalHashNormalized(t *testing.T) {
	p := embed.NewLocalHashProvider(64)
	vecs, err := p.EmbedTexts(context.Background(), []string{"夜色渐深 街道空无一人", "", "   "})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	for _, v := range vecs[1] {
		assert.Zero(t, v)
	}
	for _, v := range vecs[2] {
		assert.Zero(t, v)
	}
}

// TestLocalHashSimilarity verifies lexical overlap ranks higher than
// disjoint text under cosine similarity.
func TestLocalHashSimilarity(t *testing.T) {
	p := embed.NewLocalHashProvider(0)
	vecs, err := p.EmbedTexts(context.Background(), []string{
		"一个男人走进昏暗的房间",
		"男人走进房间里",
		"海边的日落风景",
	})
	require.NoError(t, err)

	sims := embed.CosineSimMatrix(vecs[:1], vecs[1:])
	require.Len(t, sims, 1)
	require.Len(t, sims[0], 2)
	assert.Greater(t, sims[0][0], sims[0][1])
}

// TestLocalHashMeta verifies the metadata the index writer records for
// this backend.
func TestLocalHashMeta(t *testing.T) {
	m := embed.NewLocalHashProvider(128).Meta()
	assert.Equal(t, "localhash", m.Type)
	assert.Equal(t, 128, m.Dim)
	assert.Empty(t, m.ModelID)
}

// TestCosineSimMatrixEmpty verifies empty inputs yield empty matrices
// rather than panicking.
func TestCosineSimMatrixEmpty(t *testing.T) {
	assert.Empty(t, embed.CosineSimMatrix(nil, nil))
	sims := embed.CosineSimMatrix([][]float32{{1, 0}}, nil)
	require.Len(t, sims, 1)
	assert.Empty(t, sims[0])
}
