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

// This file defines the command that vectorizes clip caption text. A
// failing remote backend degrades to the local hashing embedder so an
// index build always completes end to end; the embedding metadata
// records which backend actually produced the vectors.
package commands

import (
	"fmt"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
)

// ClipEmbedder is a command that embeds every clip's merged caption
// text into the vector table the scheduler searches.
type ClipEmbedder struct {
	cor.BaseCommand
	provider    embed.Provider
	fallbackDim int
}

// NewClipEmbedder is the constructor for the ClipEmbedder command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - provider: The primary embedding backend.
//   - fallbackDim: Vector dimension for the local-hash fallback.
//
// Outputs:
//   - *ClipEmbedder: A pointer to the newly instantiated command.
func NewClipEmbedder(name string, provider embed.Provider, fallbackDim int) *ClipEmbedder {
	return &ClipEmbedder{
		BaseCommand: *cor.NewBaseCommand(name),
		provider:    provider,
		fallbackDim: fallbackDim,
	}
}

// Execute embeds the clip texts, falling back to local hashing when the
// primary backend fails.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *ClipEmbedder) Execute(context cor.Context) {
	clips := context.Get(c.GetInputParam()).([]model.Clip)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	texts := make([]string, len(clips))
	for i := range clips {
		texts[i] = clips[i].Text
	}

	provider := c.provider
	vecs, err := provider.EmbedTexts(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			context.AddError(c.GetName(), ctxErr)
			return
		}
		reporter.Log(fmt.Sprintf("WARNING: embedding backend failed; falling back to local hashing vectors: %v", err))
		provider = embed.NewLocalHashProvider(c.fallbackDim)
		if vecs, err = provider.EmbedTexts(ctx, texts); err != nil {
			context.AddError(c.GetName(), fmt.Errorf("embed clip texts: %w", err))
			c.GetErrorCounter().Add(ctx, 1)
			return
		}
	}

	meta := provider.Meta()
	reporter.Log(fmt.Sprintf("embedded %d clip texts (backend=%s dim=%d)", len(texts), meta.Type, meta.Dim))
	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(GetClipVectorsParamName(), vecs)
	context.Add(GetEmbeddingMetaParamName(), meta)
	context.Add(cor.CtxOut, vecs)
}
