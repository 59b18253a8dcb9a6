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

// This file defines the terminal command of the index workflow: it
// persists the clip table and vector matrix as the on-disk artifact
// render jobs load.
package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/index"
)

// IndexWriter is a command that writes the finished footage index to
// the project cache.
type IndexWriter struct {
	cor.BaseCommand
}

// NewIndexWriter is the constructor for the IndexWriter command.
//
// Inputs:
//   - name: A string name for this command instance.
//
// Outputs:
//   - *IndexWriter: A pointer to the newly instantiated command.
func NewIndexWriter(name string) *IndexWriter {
	return &IndexWriter{BaseCommand: *cor.NewBaseCommand(name)}
}

// IsExecutable additionally requires the clip table, the vectors, and
// the embedding metadata gathered by the earlier commands.
func (c *IndexWriter) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetClipsParamName()) != nil &&
		context.Get(GetClipVectorsParamName()) != nil &&
		context.Get(GetEmbeddingMetaParamName()) != nil &&
		context.Get(GetIndexRequestParamName()) != nil
}

// Execute assembles and saves the index artifact.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *IndexWriter) Execute(context cor.Context) {
	clips := context.Get(GetClipsParamName()).([]model.Clip)
	vecs := context.Get(GetClipVectorsParamName()).([][]float32)
	meta := context.Get(GetEmbeddingMetaParamName()).(model.EmbeddingMeta)
	req := context.Get(GetIndexRequestParamName()).(*model.IndexRequest)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	// Hosted backends leave Dim zero in their metadata; record the
	// dimension actually produced so the artifact stands on its own.
	if meta.Dim == 0 && len(vecs) > 0 {
		meta.Dim = len(vecs[0])
	}

	artifact := &model.IndexArtifact{
		CreatedAt: time.Now().Format(time.RFC3339),
		Clips:     clips,
		Embedding: meta,
	}
	indexDir := filepath.Join(req.CacheDir, "index")
	if err := index.SaveArtifact(indexDir, artifact, vecs); err != nil {
		context.AddError(c.GetName(), fmt.Errorf("save index artifact: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	reporter.Log(fmt.Sprintf("index ready: %d clips, %d-dim vectors, %s", len(clips), meta.Dim, indexDir))
	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(cor.CtxOut, artifact)
}
