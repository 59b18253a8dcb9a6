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

// Package align maps punctuation-split narration units onto the word
// timings reported by the TTS engine. Because the audio was synthesized
// from exactly the script being aligned, the contract is strict: the
// cleaned script text must equal the cleaned word stream character for
// character, and any difference is a pairing error (wrong JSON for this
// audio), never something to fuzzy-match around.
//
// Logic Flow (AlignUnitsToWords):
//  1. Clean both sides down to spoken characters (CJK/Latin/digit only).
//  2. Require exact equality of the concatenations; fail with a
//     *MismatchError carrying the first differing offset and context
//     snippets on both sides.
//  3. Walk cumulative cleaned-unit lengths to find each unit boundary's
//     position in the cleaned word stream, then map back to original
//     word indices through a saved position table.
//  4. Take each unit's time range from its first word's start and last
//     word's end, then close inter-unit gaps at the midpoint so the
//     timeline has no holes and no overlaps.
//  5. When the audio duration is known, pin the first start to 0 and the
//     last end to it, then enforce monotonicity with a 20ms floor.
package align

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/muziris/go-gist-video/internal/core/model"
)

// ErrNoWordTimings means the speech marks carried no usable WordBoundary
// events, so nothing can be aligned.
var ErrNoWordTimings = errors.New("align: speech marks contain no word timings")

// MismatchError reports the first point where the cleaned script text and
// the cleaned spoken word stream diverge. It almost always means the
// wrong speech-mark file was paired with this script.
type MismatchError struct {
	Offset        int    // First differing character position in the cleaned streams.
	ScriptSnippet string // Cleaned script context around the offset.
	SpokenSnippet string // Cleaned word-stream context around the offset.
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf(
		"align: script text does not match spoken words (wrong speech-mark file for this audio?) mismatch_at=%d script=%q spoken=%q",
		e.Offset, e.ScriptSnippet, e.SpokenSnippet)
}

// cleanSpoken reduces text to the characters the TTS engine actually
// speaks: CJK ideographs, Latin letters, and digits. Quotes, punctuation
// and whitespace never appear in WordBoundary tokens, so they must not
// take part in the comparison.
func cleanSpoken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 0x4e00 && r <= 0x9fff) ||
			(r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AlignUnitsToWords aligns narration units to word tokens and returns one
// interval per unit, gap-free and overlap-free. totalDur is the probed
// narration audio length; when positive, the first interval starts at 0
// and the last ends exactly at totalDur.
//
// Errors: ErrNoWordTimings when words is empty; a descriptive error when
// a unit cleans to nothing (punctuation-only units must be fixed in the
// script, not silently absorbed); *MismatchError when the texts differ.
func AlignUnitsToWords(words []model.WordToken, units []string, totalDur float64) ([]model.Interval, error) {
	parts := make([]string, 0, len(units))
	for _, u := range units {
		if t := strings.TrimSpace(u); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	if len(words) == 0 {
		return nil, ErrNoWordTimings
	}

	// Cleaned word stream with a map back to original token indices.
	wordTok := make([]string, 0, len(words))
	wordMap := make([]int, 0, len(words))
	for i, w := range words {
		if t := cleanSpoken(w.Text); t != "" {
			wordTok = append(wordTok, t)
			wordMap = append(wordMap, i)
		}
	}
	if len(wordTok) == 0 {
		return nil, fmt.Errorf("align: word tokens are empty after cleaning")
	}

	partTok := make([]string, len(parts))
	for i, p := range parts {
		partTok[i] = cleanSpoken(p)
		if partTok[i] == "" {
			return nil, fmt.Errorf("align: unit %d (%q) contains only punctuation or whitespace; remove stray blank lines or standalone punctuation from the script", i, p)
		}
	}

	wholeWords := []rune(strings.Join(wordTok, ""))
	wholeScript := []rune(strings.Join(partTok, ""))
	if string(wholeScript) != string(wholeWords) {
		m := 0
		mx := min(len(wholeScript), len(wholeWords))
		for m < mx && wholeScript[m] == wholeWords[m] {
			m++
		}
		return nil, &MismatchError{
			Offset:        m,
			ScriptSnippet: snippet(wholeScript, m),
			SpokenSnippet: snippet(wholeWords, m),
		}
	}

	// Cumulative cleaned lengths of word tokens, for boundary lookup.
	cumEnd := make([]int, len(wordTok))
	cur := 0
	for i, t := range wordTok {
		cur += len([]rune(t))
		cumEnd[i] = cur
	}
	posToTok := func(charPos int) int {
		if charPos <= 0 {
			return 0
		}
		j := sort.SearchInts(cumEnd, charPos)
		return min(len(wordTok), j+1)
	}

	boundsTok := make([]int, 0, len(partTok)+1)
	boundsTok = append(boundsTok, 0)
	acc := 0
	for _, t := range partTok[:len(partTok)-1] {
		acc += len([]rune(t))
		boundsTok = append(boundsTok, posToTok(acc))
	}
	boundsTok = append(boundsTok, len(wordTok))

	// Token bounds -> original word-index ranges.
	starts := make([]float64, 0, len(parts))
	ends := make([]float64, 0, len(parts))
	for i := 0; i+1 < len(boundsTok); i++ {
		aT := max(0, min(len(wordMap)-1, boundsTok[i]))
		bT := max(aT+1, min(len(wordMap), boundsTok[i+1]))
		aW := wordMap[aT]
		bW := wordMap[bT-1] + 1
		starts = append(starts, words[aW].Start)
		ends = append(ends, words[bW-1].End)
	}

	// Close inter-unit gaps at the midpoint.
	for i := 0; i+1 < len(starts); i++ {
		mid := 0.5 * (ends[i] + starts[i+1])
		ends[i] = mid
		starts[i+1] = mid
	}

	if totalDur > 0 {
		starts[0] = 0
		ends[len(ends)-1] = totalDur
	}

	out := make([]model.Interval, 0, len(starts))
	prev := 0.0
	for i := range starts {
		st := math.Max(prev, starts[i])
		en := math.Max(st+0.02, ends[i])
		out = append(out, model.Interval{Start: st, End: en})
		prev = en
	}
	return out, nil
}

// snippet extracts the diagnostic context window around a mismatch
// offset: 20 characters before, 40 after.
func snippet(s []rune, m int) string {
	lo := max(0, m-20)
	hi := min(len(s), m+40)
	return string(s[lo:hi])
}
