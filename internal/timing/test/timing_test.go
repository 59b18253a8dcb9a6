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

// Package timing_test contains unit tests for the speech-mark parser and
// the visible-length / line-splitting helpers.
package timing_test

import (
	"strings"
	"testing"

	"github.com/muziris/go-gist-video/internal/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleMarks is a minimal but realistic speech-mark file: two words and
// one sentence, with an unrelated event type and an incomplete event that
// the parser must skip. Offsets are 100ns ticks.
const sampleMarks = `{
  "Metadata": [
    {"Type": "SessionEnd", "Data": {"Offset": 0}},
    {"Type": "WordBoundary", "Data": {"Offset": 5000000, "Duration": 2000000, "text": {"Text": "世界"}}},
    {"Type": "WordBoundary", "Data": {"Offset": 0, "Duration": 5000000, "text": {"Text": "你好"}}},
    {"Type": "WordBoundary", "Data": {"Offset": 9000000, "text": {"Text": "dropped"}}},
    {"Type": "SentenceBoundary", "Data": {"Offset": 0, "Duration": 7000000, "text": {"Text": "你好世界"}}}
  ]
}`

// TestParseSpeechMarks verifies tick-to-second conversion, skipping of
// non-boundary and incomplete events, and chronological sorting.
func TestParseSpeechMarks(t *testing.T) {
	words, sents, err := timing.ParseSpeechMarks(strings.NewReader(sampleMarks))
	require.NoError(t, err)

	// The incomplete event (no Duration) and the SessionEnd event are gone.
	require.Len(t, words, 2)
	require.Len(t, sents, 1)

	// Events arrive out of order in the file; the parser sorts by start.
	assert.Equal(t, "你好", words[0].Text)
	assert.InDelta(t, 0.0, words[0].Start, 1e-9)
	assert.InDelta(t, 0.5, words[0].End, 1e-9)
	assert.Equal(t, "世界", words[1].Text)
	assert.InDelta(t, 0.5, words[1].Start, 1e-9)
	assert.InDelta(t, 0.7, words[1].End, 1e-9)

	assert.Equal(t, "你好世界", sents[0].Text)
	assert.InDelta(t, 0.7, sents[0].End, 1e-9)
}

// TestParseSpeechMarksMissingContainer verifies that a file without the
// Metadata list fails with a FormatError rather than returning empty
// token slices.
func TestParseSpeechMarksMissingContainer(t *testing.T) {
	_, _, err := timing.ParseSpeechMarks(strings.NewReader(`{"events": []}`))
	require.Error(t, err)
	var fe *timing.FormatError
	assert.ErrorAs(t, err, &fe)

	_, _, err = timing.ParseSpeechMarks(strings.NewReader(`not json`))
	require.Error(t, err)
	assert.ErrorAs(t, err, &fe)
}

// TestVisibleLength checks that whitespace and the splitting punctuation
// set are excluded while CJK, Latin and digits each count as one.
func TestVisibleLength(t *testing.T) {
	assert.Equal(t, 0, timing.VisibleLength(""))
	assert.Equal(t, 0, timing.VisibleLength(" \t\n"))
	assert.Equal(t, 0, timing.VisibleLength("，。！？"))
	assert.Equal(t, 4, timing.VisibleLength("你好世界"))
	assert.Equal(t, 7, timing.VisibleLength("你好, world!"))
	assert.Equal(t, 5, timing.VisibleLength("a1，b2。c"))
}

// TestSplitOneLinePunctuationPreferred verifies the punctuation boundary
// is taken when the visible text before it fills enough of the budget:
// the comma at visible position 5 beats the hard cut for maxChars 8.
func TestSplitOneLinePunctuationPreferred(t *testing.T) {
	got := timing.SplitOneLine("一二三四五，六七八九十", 8)
	assert.Equal(t, []string{"一二三四五，", "六七八九十"}, got)
	for _, chunk := range got {
		assert.LessOrEqual(t, timing.VisibleLength(chunk), 8)
	}
}

// TestSplitOneLineRejectsShortPunctuationChunks verifies that punctuation
// too close to the chunk start does not win: with only three visible
// characters before the last comma, the splitter hard-cuts at the budget
// instead of emitting a fragment.
func TestSplitOneLineRejectsShortPunctuationChunks(t *testing.T) {
	got := timing.SplitOneLine("一二三，四五六。七八九", 4)
	assert.Equal(t, []string{"一二三，四", "五六。七八", "九"}, got)
	for _, chunk := range got {
		assert.LessOrEqual(t, timing.VisibleLength(chunk), 4)
	}
}

// TestSplitOneLinePunctuationVisibleCount pins the gate to the visible
// count before the punctuation rather than its rune position: the second
// comma sits at rune position four but only two visible characters
// precede it, so the cut must fall back to the hard budget boundary.
func TestSplitOneLinePunctuationVisibleCount(t *testing.T) {
	got := timing.SplitOneLine("一，二，三三三三三", 6)
	assert.Equal(t, []string{"一，二，三三三三", "三"}, got)
	for _, chunk := range got {
		assert.LessOrEqual(t, timing.VisibleLength(chunk), 6)
	}
}

// TestSplitOneLineShortInput verifies that text already within the budget
// comes back as a single chunk and that empty input yields nothing.
func TestSplitOneLineShortInput(t *testing.T) {
	assert.Equal(t, []string{"你好世界"}, timing.SplitOneLine("你好世界", 12))
	assert.Empty(t, timing.SplitOneLine("   ", 12))
	assert.Empty(t, timing.SplitOneLine("", 12))
}

// TestSplitOneLineHardCut feeds punctuation-free text so the splitter has
// to fall back to hard cuts, then checks the split-bound property: every
// chunk within budget and the visible characters reproduced in order.
func TestSplitOneLineHardCut(t *testing.T) {
	in := "一二三四五六七八九十一二三四五六七八九十"
	got := timing.SplitOneLine(in, 6)
	require.NotEmpty(t, got)
	joined := ""
	for _, chunk := range got {
		assert.LessOrEqual(t, timing.VisibleLength(chunk), 6)
		joined += chunk
	}
	assert.Equal(t, in, joined)
}

// TestSplitOneLineStripsWhitespace verifies interior whitespace does not
// survive into the output chunks.
func TestSplitOneLineStripsWhitespace(t *testing.T) {
	got := timing.SplitOneLine("你好 世界", 12)
	assert.Equal(t, []string{"你好世界"}, got)
}
