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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains struct definitions for data models
// that are primarily used for in-memory operations during the execution
// of a workflow. These objects are considered "transient" because they
// are not persisted in their current form; they serve as intermediate
// containers for data as it is processed, transformed, and passed
// between different commands in a chain of responsibility.
package model

// IndexRequest describes one index build: which source videos to
// analyze and where the per-project cache lives. Tuning parameters
// (slice mode, clip bounds, caption concurrency) come from the
// configuration, not the request.
type IndexRequest struct {
	ProjectName string   `json:"project_name"`         // Display name of the project.
	ProjectHint string   `json:"project_hint"`         // Optional work/IP hint for the vision model; falls back to ProjectName.
	Videos      []string `json:"videos"`               // Paths of the source videos, in index order.
	CacheDir    string   `json:"cache_dir"`            // Per-project cache root (proxies, frames, index/).
	MaxVideos   int      `json:"max_videos,omitempty"` // Preview mode: only index the first N videos when > 0.
}

// VideoAsset is one prepared source video: sniffed, proxied, and
// probed. The proxy carries all heavy analysis; the original is only
// touched for frame extraction.
type VideoAsset struct {
	Index      int     `json:"index"`       // 1-based position in the request, used in clip ids.
	SourcePath string  `json:"source_path"` // The original video file.
	ProxyPath  string  `json:"proxy_path"`  // The low-res silent analysis proxy.
	Duration   float64 `json:"duration"`    // Proxy duration in seconds.
	CacheDir   string  `json:"cache_dir"`   // Per-video cache directory (frames live under it).
}

// RenderRequest describes one edit build: the narration script, the
// TTS audio with its speech-mark metadata, and the index to schedule
// against.
type RenderRequest struct {
	ProjectName    string   `json:"project_name"`          // Used in embedding queries and the caption-format work label.
	ScriptText     string   `json:"script_text"`           // The authored narration script with inline markup.
	VoiceAudioPath string   `json:"voice_audio_path"`      // The TTS narration audio file.
	MarksPath      string   `json:"marks_path,omitempty"`  // Speech-mark JSON; defaults to the audio path with a .json extension.
	IndexDir       string   `json:"index_dir"`             // Directory holding the clip table and vector file.
	OutDir         string   `json:"out_dir"`               // Job output directory for edl.json and subtitles.ass.
	ExtraHints     []string `json:"extra_hints,omitempty"` // Additional matching keywords applied to every unit.
}
