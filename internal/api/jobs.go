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

// Package api contains the gin route handlers of the job-control API:
// starting index and render jobs, inspecting and steering them, and
// streaming their event feeds over WebSocket.
package api

import (
	goctx "context"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/muziris/go-gist-video/internal/config"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/core/workflow"
	"github.com/muziris/go-gist-video/internal/jobs"
)

// Handler bundles the dependencies of the job API routes.
type Handler struct {
	Config   *config.Config
	Manager  *jobs.Manager
	IndexWf  *workflow.IndexWorkflow
	RenderWf *workflow.RenderWorkflow
}

// JobRouter registers the job-control routes on the given group.
//
// Inputs:
//   - r: A *gin.RouterGroup to which the job routes will be added
//     (typically "/api/v1").
//
// This function defines the following endpoints:
//   - POST /jobs/index: Starts a footage indexing job.
//   - POST /jobs/render: Starts a render job.
//   - GET /jobs: Lists all known jobs, newest first.
//   - GET /jobs/:id: Returns one job's snapshot.
//   - POST /jobs/:id/pause|resume|cancel: Steers a running job.
//   - GET /jobs/:id/events: WebSocket event stream, history replayed
//     first.
func (h *Handler) JobRouter(r *gin.RouterGroup) {
	jobsGroup := r.Group("/jobs")
	{
		jobsGroup.POST("/index", h.startIndexJob)
		jobsGroup.POST("/render", h.startRenderJob)

		jobsGroup.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, h.Manager.List())
		})
		jobsGroup.GET("/:id", func(c *gin.Context) {
			job, err := h.Manager.Get(c.Param("id"))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, job.Snapshot())
		})

		jobsGroup.POST("/:id/pause", h.signal(h.Manager.Pause))
		jobsGroup.POST("/:id/resume", h.signal(h.Manager.Resume))
		jobsGroup.POST("/:id/cancel", h.signal(h.Manager.Cancel))

		jobsGroup.GET("/:id/events", h.streamEvents)
	}
}

// signal adapts a manager steering call (pause/resume/cancel) into a
// gin handler.
func (h *Handler) signal(fn func(jobID string) (jobs.Snapshot, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := fn(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// startIndexJob launches the index workflow as a background job and
// returns the queued snapshot immediately.
func (h *Handler) startIndexJob(c *gin.Context) {
	var req model.IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Videos) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "videos is required"})
		return
	}
	if req.CacheDir == "" {
		req.CacheDir = filepath.Join(h.Config.Application.DataDir, req.ProjectName, "cache")
	}

	job := h.Manager.Start("index", func(ctx goctx.Context, j *jobs.Job) error {
		return h.IndexWf.Run(ctx, &req, j, j)
	})
	c.JSON(http.StatusAccepted, job.Snapshot())
}

// startRenderJob launches the render workflow as a background job and
// returns the queued snapshot immediately.
func (h *Handler) startRenderJob(c *gin.Context) {
	var req model.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ScriptText == "" || req.VoiceAudioPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script_text and voice_audio_path are required"})
		return
	}
	if req.IndexDir == "" {
		req.IndexDir = filepath.Join(h.Config.Application.DataDir, req.ProjectName, "cache", "index")
	}
	if req.OutDir == "" {
		req.OutDir = filepath.Join(h.Config.Application.DataDir, req.ProjectName, "out")
	}

	job := h.Manager.Start("render", func(ctx goctx.Context, j *jobs.Job) error {
		return h.RenderWf.Run(ctx, &req, j, j)
	})
	c.JSON(http.StatusAccepted, job.Snapshot())
}
