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

// This file implements the hosted embedding backend. It wraps the
// Generative AI models handle with the Decorator pattern to add rate
// limiting and bounded retries, the same treatment the caption backend
// gets, because both hit per-minute quotas on shared endpoints.
package embed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/muziris/go-gist-video/internal/core/model"
)

// QuotaAwareEmbeddingModel wraps a *genai.Models handle with a rate
// limiter and retry loop. The handle and model name are injected by the
// caller; this type never reads credentials or project settings from
// the environment.
type QuotaAwareEmbeddingModel struct {
	ModelName   string
	ModelHandle *genai.Models
	Config      *genai.EmbedContentConfig
	RateLimit   *rate.Limiter
	MaxRetries  int
}

// NewQuotaAwareEmbeddingModel builds the wrapper around an existing
// models handle.
//
// Inputs:
//   - handle: the *genai.Models from an already-authenticated client.
//   - name: the embedding model to invoke (e.g. "text-embedding-004").
//   - requestsPerSecond: the quota ceiling to enforce client-side.
//
// Outputs:
//   - *QuotaAwareEmbeddingModel ready for EmbedTexts calls.
func NewQuotaAwareEmbeddingModel(handle *genai.Models, name string, requestsPerSecond int) *QuotaAwareEmbeddingModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &QuotaAwareEmbeddingModel{
		ModelName:   name,
		ModelHandle: handle,
		RateLimit:   rate.NewLimiter(rate.Every(time.Second), requestsPerSecond),
		MaxRetries:  3,
	}
}

// EmbedTexts embeds the batch through the hosted model.
//
// Logic Flow:
//  1. Wait on the rate limiter (aborts if ctx is canceled).
//  2. Call EmbedContent with one content per text.
//  3. On failure, retry up to MaxRetries with a growing pause; every
//     pause also honors ctx cancellation.
//  4. Validate the response holds exactly one vector per input text.
func (q *QuotaAwareEmbeddingModel) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	var lastErr error
	for attempt := 0; attempt <= q.MaxRetries; attempt++ {
		if err := q.RateLimit.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := q.ModelHandle.EmbedContent(ctx, q.ModelName, contents, q.Config)
		if err == nil {
			if len(resp.Embeddings) != len(texts) {
				return nil, fmt.Errorf("embedding backend returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
			}
			out := make([][]float32, len(texts))
			for i, e := range resp.Embeddings {
				out[i] = e.Values
			}
			return out, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Second):
		}
	}
	return nil, fmt.Errorf("embedding failed after %d retries: %w", q.MaxRetries, lastErr)
}

// Meta identifies the hosted vector space. Dim is left zero: the
// artifact writer fills it from the first returned vector.
func (q *QuotaAwareEmbeddingModel) Meta() model.EmbeddingMeta {
	return model.EmbeddingMeta{Type: "genai", ModelID: q.ModelName}
}
