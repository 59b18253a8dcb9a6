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

// Package config defines the data structures for application
// configuration, loaded from TOML files. It provides a structured way
// to manage settings for the media pipeline (ffmpeg, scene slicing),
// the vision and embedding model backends, the render/scheduling
// parameters, and the HTTP server.
//
// Structs:
//   - Application: General application settings.
//   - Media: ffmpeg/ffprobe paths and index slicing parameters.
//   - Vision: Captioning backend, rate limits, and worker counts.
//   - Embedding: Embedding backend and vector dimensions.
//   - Render: Scheduling weights, output geometry, and subtitle style.
//   - Server: HTTP listener and CORS settings.
//   - Config: The top-level struct aggregating all sections.
//
// Functions:
//   - NewConfig: A constructor that returns a Config populated with
//     working defaults; TOML files override only what they name.
package config

import (
	"fmt"
	"math"

	"google.golang.org/genai"

	"github.com/muziris/go-gist-video/internal/subtitles"
)

// DefaultSafetySettings defines the default content safety thresholds
// for GenAI models. These settings are configured to be
// non-restrictive, allowing all content categories to pass through
// without being blocked, since the inputs are the operator's own media.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Application holds general application settings.
type Application struct {
	Name           string `toml:"name"`             // The application name, used in logs and traces.
	DataDir        string `toml:"data_dir"`         // The root directory for projects, indexes, and job outputs.
	ThreadPoolSize int    `toml:"thread_pool_size"` // The size of the worker pool for parallel processing tasks.

	// Credentials for the GenAI backends. Only read when a gemini or
	// genai backend is configured; the null/localhash backends run
	// fully offline.
	GoogleProjectId string `toml:"google_project_id"`
	GoogleLocation  string `toml:"google_location"`
}

// Media holds ffmpeg tooling and index slicing configuration.
type Media struct {
	FFmpegPath  string `toml:"ffmpeg_path"`  // Explicit ffmpeg binary path; empty means PATH lookup.
	FFprobePath string `toml:"ffprobe_path"` // Explicit ffprobe binary path; empty means PATH lookup.

	ProxyHeight int `toml:"proxy_height"` // Height of the low-res analysis proxy in pixels.

	SliceMode           string  `toml:"slice_mode"`             // "scene" for detector-driven slicing, "fixed" for fixed windows.
	SceneThreshold      float64 `toml:"scene_threshold"`        // Scene-change score threshold, clamped to [0, 1].
	SceneFps            float64 `toml:"scene_fps"`              // Analysis frame rate during the scene scan.
	FixedClipSec        float64 `toml:"fixed_clip_sec"`         // Window length for fixed slicing and the detector fallback.
	SkipHeadSec         float64 `toml:"skip_head_sec"`          // Seconds trimmed from the start of every source.
	SkipTailSec         float64 `toml:"skip_tail_sec"`          // Seconds trimmed from the end of every source.
	ClipMinSec          float64 `toml:"clip_min_sec"`           // Minimum clip length after windowing.
	ClipTargetSec       float64 `toml:"clip_target_sec"`        // Preferred clip length when splitting long shots.
	ClipMaxSec          float64 `toml:"clip_max_sec"`           // Maximum clip length after windowing.
	FramesPerClip       int     `toml:"frames_per_clip"`        // Keyframes sampled per clip for captioning.
}

// Vision holds the captioning backend configuration.
type Vision struct {
	Backend           string `toml:"backend"`             // "gemini" or "null".
	Model             string `toml:"model"`               // The vision model name.
	RateLimit         int    `toml:"rate_limit"`          // Caption requests per second.
	MaxRetries        int    `toml:"max_retries"`         // Retries per caption request before marking it failed.
	CaptionWorkers    int    `toml:"caption_workers"`     // Concurrent caption workers.
	CaptionInFlight   int    `toml:"caption_in_flight"`   // Upper bound on queued caption batches.
	CaptionBatchClips int    `toml:"caption_batch_clips"` // Clips grouped into one vision request; 1 disables grouping.
	CaptionFlushEvery int    `toml:"caption_flush_every"` // Cache flush threshold in dirty entries.
	ProjectHint       string `toml:"project_hint"`        // Optional work/IP hint prepended to caption prompts.
}

// Embedding holds the embedding backend configuration.
type Embedding struct {
	Backend    string `toml:"backend"`     // "genai" or "localhash".
	Model      string `toml:"model"`       // The embedding model name for the genai backend.
	Dim        int    `toml:"dim"`         // Vector dimension for the localhash backend.
	RateLimit  int    `toml:"rate_limit"`  // Embedding requests per second.
	MaxRetries int    `toml:"max_retries"` // Retries per embedding request.
}

// Render holds scheduling weights, output geometry, and subtitle style.
type Render struct {
	OutputFps    int `toml:"output_fps"`    // Frame grid for unit boundary snapping.
	OutputWidth  int `toml:"output_width"`  // Output canvas width in pixels.
	OutputHeight int `toml:"output_height"` // Output canvas height in pixels.

	DedupWindowSec       float64 `toml:"dedup_window_sec"`         // Cooldown before a shot may be reused.
	KeywordBoost         float64 `toml:"keyword_boost"`            // Score bonus per keyword hit.
	SubtitleHeavyPenalty float64 `toml:"subtitle_heavy_penalty"`   // Score penalty for subtitle-heavy clips.
	MinSameSourceGapSec  float64 `toml:"min_same_source_gap_sec"`  // Minimum source-time gap between back-to-back same-source segments.

	SubtitleFontName      string  `toml:"subtitle_font_name"`       // Subtitle font family.
	SubtitleFontSizeVh    float64 `toml:"subtitle_font_size_vh"`    // Font size as percent of output height.
	SubtitleMarginBotVh   float64 `toml:"subtitle_margin_bot_vh"`   // Bottom margin as percent of output height.
	SubtitleSafeLrVw      float64 `toml:"subtitle_safe_lr_vw"`      // Left/right safe margin as percent of output width.
	SubtitleShadowAlpha   float64 `toml:"subtitle_shadow_alpha"`    // Shadow opacity in [0, 1].
	SubtitleShadowBlur    float64 `toml:"subtitle_shadow_blur"`     // Shadow blur radius.
	SubtitleShadowX       int     `toml:"subtitle_shadow_x"`        // Shadow x offset in pixels.
	SubtitleShadowY       int     `toml:"subtitle_shadow_y"`        // Shadow y offset in pixels.
	SubtitleMaxLines      int     `toml:"subtitle_max_lines"`       // Maximum rendered subtitle lines per event.
	EmphasisEnable        bool    `toml:"emphasis_enable"`          // Whether keyword pop-up overlays are rendered.
	EmphasisMaxPerLine    int     `toml:"emphasis_max_per_line"`    // Pop-up slots per subtitle event.
	EmphasisPopupSec      float64 `toml:"emphasis_popup_sec"`       // Pop-up hold duration in seconds.
}

// Server holds the HTTP listener configuration.
type Server struct {
	Port           int      `toml:"port"`            // TCP port for the API server.
	AllowedOrigins []string `toml:"allowed_origins"` // CORS origins allowed to call the API.
}

// Config represents the overall configuration for the application,
// loaded from TOML files. It acts as the root container for all other
// configuration structs.
type Config struct {
	Application Application `toml:"application"`
	Media       Media       `toml:"media"`
	Vision      Vision      `toml:"vision"`
	Embedding   Embedding   `toml:"embedding"`
	Render      Render      `toml:"render"`
	Server      Server      `toml:"server"`
}

// NewConfig returns a Config populated with working defaults so a
// missing or sparse TOML file still yields a runnable pipeline; the
// loader overrides only the keys each file names.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:           "gist-video",
			DataDir:        "data",
			ThreadPoolSize: 4,
		},
		Media: Media{
			ProxyHeight:    180,
			SliceMode:      "scene",
			SceneThreshold: 0.35,
			SceneFps:       4.0,
			FixedClipSec:   4.0,
			ClipMinSec:     3.0,
			ClipTargetSec:  4.5,
			ClipMaxSec:     6.0,
			FramesPerClip:  3,
		},
		Vision: Vision{
			Backend:           "gemini",
			Model:             "gemini-2.0-flash",
			RateLimit:         1,
			MaxRetries:        3,
			CaptionWorkers:    2,
			CaptionInFlight:   8,
			CaptionBatchClips: 1,
			CaptionFlushEvery: 10,
		},
		Embedding: Embedding{
			Backend:    "localhash",
			Model:      "text-embedding-004",
			Dim:        512,
			RateLimit:  1,
			MaxRetries: 3,
		},
		Render: Render{
			OutputFps:            25,
			OutputWidth:          1920,
			OutputHeight:         1080,
			DedupWindowSec:       60,
			KeywordBoost:         0.05,
			SubtitleHeavyPenalty: 0.06,
			MinSameSourceGapSec:  0.8,
			SubtitleFontName:     "MicrosoftYaHeiUI",
			SubtitleFontSizeVh:   6.0,
			SubtitleMarginBotVh:  14.0,
			SubtitleSafeLrVw:     5.0,
			SubtitleShadowAlpha:  0.5,
			SubtitleShadowBlur:   0.3,
			SubtitleShadowX:      0,
			SubtitleShadowY:      2,
			SubtitleMaxLines:     1,
			EmphasisEnable:       true,
			EmphasisMaxPerLine:   1,
			EmphasisPopupSec:     0.9,
		},
		Server: Server{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
	}
}

// Validate rejects configurations the pipeline cannot run with. Only
// structurally fatal values are checked; soft parameters are clamped at
// their point of use.
func (c *Config) Validate() error {
	if c.Application.DataDir == "" {
		return fmt.Errorf("application.data_dir must not be empty")
	}
	if c.Media.ClipMinSec <= 0 || c.Media.ClipMaxSec < c.Media.ClipMinSec {
		return fmt.Errorf("media clip bounds invalid: min=%.2f max=%.2f",
			c.Media.ClipMinSec, c.Media.ClipMaxSec)
	}
	if c.Media.FramesPerClip < 1 {
		return fmt.Errorf("media.frames_per_clip must be at least 1")
	}
	if c.Render.OutputFps < 1 {
		return fmt.Errorf("render.output_fps must be at least 1")
	}
	if c.Render.OutputWidth < 16 || c.Render.OutputHeight < 16 {
		return fmt.Errorf("render output size invalid: %dx%d",
			c.Render.OutputWidth, c.Render.OutputHeight)
	}
	if c.Embedding.Dim < 1 {
		return fmt.Errorf("embedding.dim must be at least 1")
	}
	return nil
}

// SubtitleStyle converts the viewport-relative render settings into
// absolute pixel values for the ASS writer. Font size and the bottom
// margin scale with output height, the safe area with output width.
func (r Render) SubtitleStyle() subtitles.Style {
	fontSize := int(math.Round(float64(r.OutputHeight) * r.SubtitleFontSizeVh / 100.0))
	marginV := int(math.Round(float64(r.OutputHeight) * r.SubtitleMarginBotVh / 100.0))
	safeLR := int(math.Round(float64(r.OutputWidth) * r.SubtitleSafeLrVw / 100.0))
	return subtitles.Style{
		PlayResX:           r.OutputWidth,
		PlayResY:           r.OutputHeight,
		FontName:           r.SubtitleFontName,
		FontSize:           fontSize,
		MarginV:            marginV,
		MarginL:            safeLR,
		MarginR:            safeLR,
		ShadowAlpha:        r.SubtitleShadowAlpha,
		ShadowBlur:         r.SubtitleShadowBlur,
		ShadowX:            r.SubtitleShadowX,
		ShadowY:            r.SubtitleShadowY,
		MaxLines:           r.SubtitleMaxLines,
		EmphasisEnable:     r.EmphasisEnable,
		EmphasisMaxPerLine: r.EmphasisMaxPerLine,
		EmphasisPopupSec:   r.EmphasisPopupSec,
	}
}
