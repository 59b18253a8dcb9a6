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

// Package api_test covers the job-control routes: request validation,
// job inspection, steering of unknown jobs, and the dashboard
// endpoints. Starting real jobs is covered by the workflow and command
// tests; these tests exercise the HTTP surface.
package api_test

import (
	goctx "context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muziris/go-gist-video/internal/api"
	"github.com/muziris/go-gist-video/internal/config"
	"github.com/muziris/go-gist-video/internal/core/workflow"
	"github.com/muziris/go-gist-video/internal/jobs"
	"github.com/muziris/go-gist-video/internal/media"
	"github.com/muziris/go-gist-video/internal/vision"
)

// newTestRouter wires a handler with in-memory dependencies onto a
// fresh gin engine, mirroring the server's route registration.
func newTestRouter(t *testing.T) (*gin.Engine, *api.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.NewConfig()
	cfg.Application.DataDir = t.TempDir()
	tools := &media.Tools{}
	h := &api.Handler{
		Config:   cfg,
		Manager:  jobs.NewManager(),
		IndexWf:  workflow.NewIndexWorkflow(cfg, tools, &vision.NullCaptionProvider{}, nil),
		RenderWf: workflow.NewRenderWorkflow(cfg, tools, nil),
	}

	r := gin.New()
	apiV1 := r.Group("/api/v1")
	h.JobRouter(apiV1)
	h.Dashboard(apiV1)
	return r, h
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListJobsEmpty(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/v1/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snaps []jobs.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	assert.Empty(t, snaps)
}

func TestGetUnknownJob(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/v1/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSteerUnknownJob(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, action := range []string{"pause", "resume", "cancel"} {
		w := doJSON(t, r, http.MethodPost, "/api/v1/jobs/nope/"+action, "")
		assert.Equal(t, http.StatusNotFound, w.Code, action)
	}
}

func TestStartIndexJobRejectsEmptyVideos(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/jobs/index", `{"project_name":"demo","videos":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartIndexJobRejectsMalformedBody(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/jobs/index", `{"videos": "not-a-list"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartRenderJobRejectsMissingFields(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/jobs/render", `{"project_name":"demo"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsCountsJobs(t *testing.T) {
	r, h := newTestRouter(t)

	// A job that succeeds immediately shows up in the stats.
	h.Manager.Start("render", func(goctx.Context, *jobs.Job) error { return nil })

	w := doJSON(t, r, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"by_status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Total)
}

func TestSettingsExposesRenderConfig(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "OutputFps")
}
