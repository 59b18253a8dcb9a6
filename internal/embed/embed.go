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

// Package embed provides text embedding backends for clip retrieval.
//
// Two backends are available: a fully offline hashing vectorizer that
// needs no model files or network (LocalHashProvider), and a hosted
// model behind a rate-limited client (QuotaAwareEmbeddingModel). An
// index records which backend produced its vectors so queries at render
// time are embedded into the same space; mixing spaces is a hard error,
// not a quality degradation.
package embed

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
	"unicode"

	"github.com/muziris/go-gist-video/internal/core/model"
)

// Provider turns a batch of texts into one vector per text. Vectors
// from a single provider are L2-normalized and share one dimension, so
// cosine similarity reduces to a dot product.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Meta() model.EmbeddingMeta
}

// DefaultLocalHashDim is the bucket count for the offline vectorizer.
const DefaultLocalHashDim = 512

// LocalHashProvider is the offline fallback embedding: a hashing
// vectorizer over character 2-grams and 3-grams. It captures lexical
// overlap only, no semantics, but it is deterministic, dependency-free,
// and fast enough to embed a whole index on the fly.
type LocalHashProvider struct {
	Dim int
}

// NewLocalHashProvider returns a provider with the given dimension;
// non-positive means DefaultLocalHashDim.
func NewLocalHashProvider(dim int) *LocalHashProvider {
	if dim <= 0 {
		dim = DefaultLocalHashDim
	}
	return &LocalHashProvider{Dim: dim}
}

// charNGrams returns the rune n-grams of text with all whitespace
// removed. Text at or under n runes is a single gram.
func charNGrams(text string, n int) []string {
	var rs []rune
	for _, r := range text {
		if !unicode.IsSpace(r) {
			rs = append(rs, r)
		}
	}
	if len(rs) == 0 {
		return nil
	}
	if len(rs) <= n {
		return []string{string(rs)}
	}
	out := make([]string, 0, len(rs)-n+1)
	for i := 0; i+n <= len(rs); i++ {
		out = append(out, string(rs[i:i+n]))
	}
	return out
}

// stableBucket maps a token to a bucket index using the first four
// bytes of its md5 digest. md5 here is a stable hash, not a security
// primitive: the bucket for a gram must never change across runs or
// machines, or stored vectors stop matching fresh queries.
func stableBucket(token string, dim int) int {
	h := md5.Sum([]byte(token))
	return int(binary.LittleEndian.Uint32(h[:4]) % uint32(dim))
}

// EmbedTexts vectorizes each text by counting hashed 2-grams and
// 3-grams, then L2-normalizing. Empty or whitespace-only texts produce
// a zero vector.
func (p *LocalHashProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	dim := p.Dim
	if dim <= 0 {
		dim = DefaultLocalHashDim
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, dim)
		grams := append(charNGrams(t, 2), charNGrams(t, 3)...)
		for _, g := range grams {
			vec[stableBucket(g, dim)] += 1.0
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		if norm > 1e-8 {
			inv := float32(1.0 / norm)
			for j := range vec {
				vec[j] *= inv
			}
		}
		out[i] = vec
	}
	return out, nil
}

// Meta identifies the vector space this provider writes into.
func (p *LocalHashProvider) Meta() model.EmbeddingMeta {
	dim := p.Dim
	if dim <= 0 {
		dim = DefaultLocalHashDim
	}
	return model.EmbeddingMeta{Type: "localhash", Dim: dim}
}

// CosineSimMatrix returns sims[i][j] = a[i] . b[j]. Inputs are assumed
// L2-normalized, so the dot product is the cosine similarity. Rows of
// mismatched length contribute over the shared prefix only; callers
// validate dimensions before getting here.
func CosineSimMatrix(a, b [][]float32) [][]float32 {
	out := make([][]float32, len(a))
	for i := range a {
		row := make([]float32, len(b))
		for j := range b {
			n := min(len(a[i]), len(b[j]))
			var s float32
			for k := 0; k < n; k++ {
				s += a[i][k] * b[j][k]
			}
			row[j] = s
		}
		out[i] = row
	}
	return out
}
