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

// This file defines the narration-unit structures produced by the script
// package. A narration unit is one display line of the authored script,
// carrying both the text variants the pipeline needs (raw, clean, display)
// and the visual-matching hints mined from inline markup.
package model

// NarrationUnit is a single line of the narration script after splitting
// and markup parsing. The three text fields serve different consumers:
// Raw feeds nothing downstream and exists for diagnostics, Clean feeds
// alignment and embedding, Display feeds the subtitle writer.
type NarrationUnit struct {
	Raw      string   `json:"raw"`                // The unit as it appeared in the script, markup included.
	Clean    string   `json:"clean"`              // Markup stripped, punctuation intact. Input to alignment.
	Display  string   `json:"display"`            // Subtitle text: mid punctuation dropped, trailing ?/! kept.
	Emphasis []string `json:"emphasis,omitempty"` // Phrases the author marked with [[...]] or 【...】.
	Tags     []string `json:"tags,omitempty"`     // #tag hints, removed from the visible text.
	Hints    []string `json:"hints,omitempty"`    // Final keyword set for shot matching, capped at 12.
}
