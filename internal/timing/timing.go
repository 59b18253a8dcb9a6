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

// Package timing parses TTS speech-mark metadata into word and sentence
// tokens on the audio clock. The TTS engine reports event offsets in
// 100-nanosecond ticks; this package converts them to seconds, which is
// the unit every downstream stage (alignment, scheduling, subtitles)
// works in.
//
// Logic Flow:
//  1. Decode the engine's JSON container and require its "Metadata" list.
//  2. Walk the events, keeping WordBoundary and SentenceBoundary entries
//     that carry an offset, a duration, and non-empty text. Anything
//     else is skipped without error, because engines interleave viseme
//     and session events that are irrelevant here.
//  3. Sort each token list by (start, end) so callers can rely on
//     chronological order regardless of how the engine emitted events.
package timing

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/muziris/go-gist-video/internal/core/model"
)

// TicksPerSecond is the TTS engine's clock resolution: offsets and
// durations arrive as 100ns ticks.
const TicksPerSecond = 10_000_000.0

// FormatError reports speech-mark input that does not match the engine's
// JSON container format. It is a hard error: nothing can be aligned
// against marks that could not be read.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "speech marks: " + e.Reason
}

// TicksToSeconds converts an engine tick count to seconds.
func TicksToSeconds(ticks float64) float64 {
	return ticks / TicksPerSecond
}

// speechMarkFile mirrors the engine's top-level JSON container. Events
// are kept raw so a single malformed entry can be skipped instead of
// failing the whole file.
type speechMarkFile struct {
	Metadata []json.RawMessage `json:"Metadata"`
}

type speechMarkEvent struct {
	Type string `json:"Type"`
	Data struct {
		Offset   *float64 `json:"Offset"`
		Duration *float64 `json:"Duration"`
		Text     struct {
			Text string `json:"Text"`
		} `json:"text"`
	} `json:"Data"`
}

// ParseSpeechMarks reads the engine's speech-mark JSON and returns the
// word and sentence tokens it contains, each sorted by (start, end).
//
// Inputs:
//   - r: The raw speech-mark JSON as produced by the TTS engine.
//
// Outputs:
//   - []model.WordToken: WordBoundary events, in chronological order.
//   - []model.SentenceToken: SentenceBoundary events, in chronological order.
//   - error: A *FormatError when the container is not valid JSON or has
//     no "Metadata" list. Individual malformed events are skipped.
func ParseSpeechMarks(r io.Reader) ([]model.WordToken, []model.SentenceToken, error) {
	var file speechMarkFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, nil, &FormatError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if file.Metadata == nil {
		return nil, nil, &FormatError{Reason: "missing 'Metadata' list"}
	}

	var words []model.WordToken
	var sents []model.SentenceToken
	for _, raw := range file.Metadata {
		var ev speechMarkEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		// An event is only usable with all three of offset, duration, and text.
		if ev.Data.Offset == nil || ev.Data.Duration == nil {
			continue
		}
		text := trimSpace(ev.Data.Text.Text)
		if text == "" {
			continue
		}
		start := TicksToSeconds(*ev.Data.Offset)
		end := start + TicksToSeconds(*ev.Data.Duration)
		switch ev.Type {
		case "WordBoundary":
			words = append(words, model.WordToken{Text: text, Start: start, End: end})
		case "SentenceBoundary":
			sents = append(sents, model.SentenceToken{Text: text, Start: start, End: end})
		}
	}

	sort.SliceStable(words, func(i, j int) bool {
		if words[i].Start != words[j].Start {
			return words[i].Start < words[j].Start
		}
		return words[i].End < words[j].End
	})
	sort.SliceStable(sents, func(i, j int) bool {
		if sents[i].Start != sents[j].Start {
			return sents[i].Start < sents[j].Start
		}
		return sents[i].End < sents[j].End
	})
	return words, sents, nil
}

// WordWeight is the alignment weight of a spoken word: its visible
// length, floored at 1 so zero-width tokens still claim time.
func WordWeight(w model.WordToken) int {
	n := VisibleLength(w.Text)
	if n < 1 {
		return 1
	}
	return n
}
