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

// This file defines the footage-side structures: shots produced by scene
// segmentation and the clips windowed out of them. Clips are what the
// index stores and the scheduler ranks; shots are the contiguous spans
// clips are cut from and the unit the scheduler deduplicates on.
package model

// Clip flag values a caption provider may attach to describe non-content
// footage. A clip carrying any of the blocking flags is excluded from
// scheduling but kept in the index artifact for inspection.
const (
	FlagSubtitleHeavy = "subtitle_heavy" // Burned-in text dominates the frame.
	FlagAd            = "ad"
	FlagIntro         = "intro"
	FlagOutro         = "outro"
	FlagCredit        = "credit"
)

// BlockingFlags is the set of caption flags that remove a clip from
// scheduling consideration entirely.
var BlockingFlags = map[string]bool{
	FlagAd:     true,
	FlagIntro:  true,
	FlagOutro:  true,
	FlagCredit: true,
}

// Shot is a contiguous span of one source video between (normalized) scene
// cuts. Shots never overlap within a source and their lengths respect the
// configured min/max bounds, except for sub-minimum sources kept whole.
type Shot struct {
	SourcePath string  `json:"source_path"` // Absolute or project-relative path of the source video.
	ShotID     int     `json:"shot_id"`     // Sequential id within the source, starting at 0.
	Start      float64 `json:"start"`       // Shot start in source-video seconds.
	End        float64 `json:"end"`         // Shot end in source-video seconds.
	ClipIdxs   []int   `json:"clip_idxs"`   // Indices into the clip table, insertion order.
}

// Dur returns the shot length, floored at zero.
func (s Shot) Dur() float64 {
	if d := s.End - s.Start; d > 0 {
		return d
	}
	return 0
}

// Clip is a fixed-size sampling window inside a shot. It is the unit of
// captioning and embedding: every clip carries the frames sampled from it,
// the captions those frames produced, and the concatenated caption text
// the embedder vectorizes.
type Clip struct {
	ClipID     string   `json:"clip_id"`            // Stable id, "v%04d_c%05d" (video ordinal, clip ordinal).
	SourcePath string   `json:"source_path"`        // Path of the source video this clip was cut from.
	ShotID     int      `json:"shot_id"`            // Id of the containing shot within the source.
	Start      float64  `json:"start"`              // Clip start in source-video seconds.
	End        float64  `json:"end"`                // Clip end in source-video seconds.
	ShotStart  float64  `json:"shot_start"`         // Containing shot's start; used to rebuild the shot index.
	ShotEnd    float64  `json:"shot_end"`           // Containing shot's end.
	Frames     []string `json:"frames,omitempty"`   // Paths of the frames sampled from this clip.
	Captions   []string `json:"captions,omitempty"` // One caption per frame, order matching Frames.
	Text       string   `json:"text"`               // Caption text joined for embedding.
	Flags      []string `json:"flags,omitempty"`    // Content flags parsed from the captions.
}

// Dur returns the clip length, floored at zero.
func (c Clip) Dur() float64 {
	if d := c.End - c.Start; d > 0 {
		return d
	}
	return 0
}

// Blocked reports whether any of the clip's flags excludes it from
// scheduling.
func (c Clip) Blocked() bool {
	for _, f := range c.Flags {
		if BlockingFlags[f] {
			return true
		}
	}
	return false
}

// HasFlag reports whether the clip carries the given content flag.
func (c Clip) HasFlag(name string) bool {
	for _, f := range c.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// EmbeddingMeta records which embedding backend produced the vectors
// stored alongside a clip table. The scheduler refuses to run when the
// query-side backend dimension disagrees with this record.
type EmbeddingMeta struct {
	Type    string `json:"type"`     // Backend type, e.g. "localhash" or "genai".
	Dim     int    `json:"dim"`      // Vector dimensionality.
	ModelID string `json:"model_id"` // Backend-specific model identifier, empty for hashing.
}

// IndexArtifact is the persisted form of a footage index: the full clip
// table plus the metadata needed to re-create a compatible query embedder.
// Clip vectors are stored in a sibling binary file, row order matching
// the Clips slice.
type IndexArtifact struct {
	CreatedAt string        `json:"created_at"` // RFC 3339 creation timestamp.
	Clips     []Clip        `json:"clips"`
	Embedding EmbeddingMeta `json:"embedding"`
}
