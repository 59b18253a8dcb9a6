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

// This file defines the scheduler output: timeline segments and the edit
// decision list (EDL) that ties narration timing, subtitle lines, and
// chosen footage together. The EDL is the contract with the renderer; it
// carries everything needed to cut, concatenate, and caption without
// re-running any pipeline stage.
package model

// TimelineSegment is one scheduled piece of footage covering exactly one
// narration unit. Segments are emitted in narration order and their
// durations sum to the narration length.
type TimelineSegment struct {
	UnitIdx      int     `json:"unit_idx"`       // Index of the narration unit this segment covers.
	SourcePath   string  `json:"source_path"`    // Source video the footage is cut from.
	ShotID       int     `json:"shot_id"`        // Shot the in-point falls inside.
	ShotStart    float64 `json:"shot_start"`     // Containing shot's start, for inspection.
	ShotEnd      float64 `json:"shot_end"`       // Containing shot's end.
	In           float64 `json:"in"`             // In-point in source-video seconds.
	Out          float64 `json:"out"`            // Out-point in source-video seconds (In + Dur).
	Dur          float64 `json:"dur"`            // Segment duration; equals the unit's narration duration.
	Score        float64 `json:"score"`          // Adjusted match score of the winning clip.
	Hit          int     `json:"hit"`            // Keyword hits the winning clip's caption text scored.
	Tier         int     `json:"tier"`           // Selection tier: 1 cooldown-respecting, 2 cooldown-waived, 3 clamped.
	AnchorClipID string  `json:"anchor_clip_id"` // Clip whose midpoint anchored the in-point.
}

// UnitTiming is the per-unit timing block of the EDL: the display line,
// its aligned interval on the audio clock, and its length on the output
// frame grid.
type UnitTiming struct {
	Text    string   `json:"text"`            // Clean narration text of the unit.
	Display string   `json:"display"`         // Subtitle display text.
	Start   float64  `json:"start"`           // Frame-snapped start, seconds.
	End     float64  `json:"end"`             // Frame-snapped end, seconds.
	Frames  int      `json:"frames"`          // Unit length in output frames, always >= 1.
	Hints   []string `json:"hints,omitempty"` // Keywords that drove shot matching, for diagnostics.
}

// EditDecisionList is the fully resolved edit for one render: every
// narration unit with its snapped timing and the footage segment chosen
// for it. Segments[i] covers Units[i].
type EditDecisionList struct {
	CreatedAt string            `json:"created_at"` // RFC 3339 creation timestamp.
	Fps       int               `json:"fps"`        // Output frame rate the unit times are snapped to.
	VoiceDur  float64           `json:"voice_dur"`  // Narration audio length, seconds; the total timeline length.
	Units     []UnitTiming      `json:"lines"`
	Segments  []TimelineSegment `json:"segments"`
}
