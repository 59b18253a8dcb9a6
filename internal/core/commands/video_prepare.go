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

// This file defines the command that prepares source videos for
// indexing: header sniffing, low-res proxy transcoding, and duration
// probing. All downstream analysis runs against the proxy.
package commands

import (
	"fmt"
	"path/filepath"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/media"
)

// VideoPrepare is a command that turns an IndexRequest into prepared
// VideoAssets, one per source video.
type VideoPrepare struct {
	cor.BaseCommand
	tools       *media.Tools
	proxyHeight int
}

// NewVideoPrepare is the constructor for the VideoPrepare command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - tools: Resolved ffmpeg/ffprobe binaries.
//   - proxyHeight: Height of the analysis proxy in pixels.
//
// Outputs:
//   - *VideoPrepare: A pointer to the newly instantiated command.
func NewVideoPrepare(name string, tools *media.Tools, proxyHeight int) *VideoPrepare {
	return &VideoPrepare{
		BaseCommand: *cor.NewBaseCommand(name),
		tools:       tools,
		proxyHeight: proxyHeight,
	}
}

// Execute transcodes a proxy for every requested video and probes its
// duration. Proxies that already exist are reused, so re-indexing a
// project is cheap.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *VideoPrepare) Execute(context cor.Context) {
	req := context.Get(c.GetInputParam()).(*model.IndexRequest)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	videos := req.Videos
	if req.MaxVideos > 0 && len(videos) > req.MaxVideos {
		reporter.Log(fmt.Sprintf("preview mode: indexing first %d of %d videos", req.MaxVideos, len(videos)))
		videos = videos[:req.MaxVideos]
	}
	if len(videos) == 0 {
		context.AddError(c.GetName(), fmt.Errorf("no videos in request; add videos first"))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	total := len(videos)
	assets := make([]model.VideoAsset, 0, total)
	for i, src := range videos {
		if err := ctx.Err(); err != nil {
			context.AddError(c.GetName(), err)
			return
		}
		reporter.Progress(i*100/total, fmt.Sprintf("video %d/%d: building proxy", i+1, total))
		reporter.Log(fmt.Sprintf("[%d/%d] video: %s", i+1, total, src))

		vcache := filepath.Join(req.CacheDir, fmt.Sprintf("v%04d", i+1))
		proxy := filepath.Join(vcache, "proxy.mp4")
		if err := c.tools.EnsureProxy(ctx, src, proxy, c.proxyHeight); err != nil {
			context.AddError(c.GetName(), fmt.Errorf("prepare %s: %w", src, err))
			c.GetErrorCounter().Add(ctx, 1)
			return
		}
		dur, err := c.tools.ProbeDuration(ctx, proxy)
		if err != nil {
			context.AddError(c.GetName(), fmt.Errorf("probe %s: %w", proxy, err))
			c.GetErrorCounter().Add(ctx, 1)
			return
		}
		assets = append(assets, model.VideoAsset{
			Index:      i + 1,
			SourcePath: src,
			ProxyPath:  proxy,
			Duration:   dur,
			CacheDir:   vcache,
		})
	}

	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(GetVideoAssetsParamName(), assets)
	context.Add(cor.CtxOut, assets)
}
