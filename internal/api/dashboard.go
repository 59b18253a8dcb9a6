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

// This file defines the dashboard endpoints: aggregate job statistics
// and the effective (non-secret) runtime settings.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Dashboard configures the statistics and settings routes.
//
// Inputs:
//   - r: A *gin.RouterGroup to which the routes will be added.
//
// This function defines the following endpoints:
//   - GET /stats: Job counts grouped by status.
//   - GET /settings: The effective media/render/embedding settings, so
//     a frontend can display the knobs that shaped an index or render.
func (h *Handler) Dashboard(r *gin.RouterGroup) {
	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			byStatus := make(map[string]int)
			total := 0
			for _, snap := range h.Manager.List() {
				byStatus[string(snap.Status)]++
				total++
			}
			c.JSON(http.StatusOK, gin.H{"total": total, "by_status": byStatus})
		})
	}

	r.GET("/settings", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"application": h.Config.Application,
			"media":       h.Config.Media,
			"render":      h.Config.Render,
			"embedding":   h.Config.Embedding,
		})
	})
}
