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
// This file contains the timing primitives produced by the speech-mark
// parser and consumed by the alignment engine. Every time value in these
// structs is in seconds on the narration-audio clock, which is the single
// time base the rest of the pipeline schedules against.
package model

// WordToken is a single spoken word reported by the TTS engine, with its
// position on the audio clock. Tokens are the atomic unit the alignment
// engine distributes across narration units.
type WordToken struct {
	Text  string  `json:"text"`  // The spoken text exactly as the engine reported it.
	Start float64 `json:"start"` // Start of the word on the audio clock, in seconds.
	End   float64 `json:"end"`   // End of the word on the audio clock, in seconds.
}

// Dur returns the duration of the token, floored at zero so that a
// malformed event can never produce a negative length downstream.
func (w WordToken) Dur() float64 {
	if d := w.End - w.Start; d > 0 {
		return d
	}
	return 0
}

// SentenceToken is a sentence-level boundary event from the TTS engine.
// Sentence events are coarser than word events and are only used by the
// sentence-container splitting path; word events drive alignment.
type SentenceToken struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Dur returns the duration of the sentence event, floored at zero.
func (s SentenceToken) Dur() float64 {
	if d := s.End - s.Start; d > 0 {
		return d
	}
	return 0
}

// Interval is a half-open-ish time range [Start, End] on the audio clock.
// The alignment engine guarantees End >= Start + 0.02 for every interval
// it emits, so zero-length subtitle lines can not occur.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Dur returns the interval length, floored at zero.
func (iv Interval) Dur() float64 {
	if d := iv.End - iv.Start; d > 0 {
		return d
	}
	return 0
}

// TimedUnit is a display line with a resolved time range. It is the output
// of the sentence-container splitting path, where lines are derived from
// the speech marks themselves rather than from an authored script.
type TimedUnit struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
