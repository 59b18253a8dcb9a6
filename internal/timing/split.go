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

// This file implements visible-length counting and one-line subtitle
// splitting. "Visible length" is what a viewer perceives as line width:
// whitespace and ordinary punctuation do not count, CJK and Latin
// characters count as one each. The max-chars rule everywhere in the
// pipeline is expressed in visible characters for that reason.
package timing

import (
	"strings"
	"unicode"
)

// subtitlePunct is the punctuation set that neither counts toward visible
// length nor may start a display line. It mixes full-width CJK marks with
// their ASCII counterparts because scripts routinely contain both.
var subtitlePunct = map[rune]bool{}

func init() {
	for _, r := range "，。！？；：、,.!?;:…" {
		subtitlePunct[r] = true
	}
}

// IsSubtitlePunct reports whether r belongs to the splitting punctuation
// set used for visible-length counting.
func IsSubtitlePunct(r rune) bool {
	return subtitlePunct[r]
}

// trimSpace removes leading and trailing whitespace. Kept private and
// trivial so timing.go reads uniformly.
func trimSpace(s string) string {
	return strings.TrimSpace(s)
}

// stripSpace removes every whitespace rune, not just the edges. Subtitle
// lines are laid out without spaces in CJK text, so widths are computed
// on the space-free form.
func stripSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// VisibleLength counts the subtitle-visible characters of s: whitespace
// and splitting punctuation are ignored, everything else counts as one.
func VisibleLength(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) || subtitlePunct[r] {
			continue
		}
		n++
	}
	return n
}

// SplitOneLine splits text into single-line subtitle chunks, each at most
// maxChars visible characters wide. Boundaries prefer punctuation; a hard
// mid-word cut happens only when no acceptable punctuation boundary
// exists in the current buffer.
//
// Logic Flow:
//  1. Strip all whitespace and walk the text rune by rune, tracking the
//     visible width of the buffer and the last punctuation position.
//  2. When the buffer exceeds maxChars, flush at the last punctuation if
//     the visible text before it is at least max(4, maxChars/2) characters
//     long, so punctuation boundaries do not degenerate into fragments.
//  3. Otherwise hard-cut at the first position whose visible width
//     exceeds maxChars.
//  4. Whatever remains becomes the final chunk. Empty chunks are dropped.
func SplitOneLine(text string, maxChars int) []string {
	s := []rune(stripSpace(strings.TrimSpace(text)))
	if len(s) == 0 {
		return nil
	}
	if maxChars < 1 {
		maxChars = 1
	}

	var out []string
	var cur []rune
	curN := 0
	lastPunctPos := -1
	lastPunctN := 0

	flushAt := func(pos int) {
		if pos <= 0 {
			return
		}
		out = append(out, string(cur[:pos]))
		cur = append(cur[:0:0], cur[pos:]...)
		curN = 0
		lastPunctPos = -1
		lastPunctN = 0
		for i, r := range cur {
			if subtitlePunct[r] {
				lastPunctPos = i + 1
				lastPunctN = curN
			} else {
				curN++
			}
		}
	}

	for _, r := range s {
		cur = append(cur, r)
		if subtitlePunct[r] {
			lastPunctPos = len(cur)
			lastPunctN = curN
		} else {
			curN++
		}
		if curN <= maxChars {
			continue
		}

		// The visible width before the punctuation decides whether the
		// punctuation boundary is acceptable, not its rune position.
		if lastPunctPos > 0 && lastPunctN >= max(4, maxChars/2) {
			flushAt(lastPunctPos)
			continue
		}

		// Hard cut: the first position whose visible width exceeds maxChars.
		cut := 0
		tmpN := 0
		for i, r2 := range cur {
			if !subtitlePunct[r2] {
				tmpN++
			}
			if tmpN > maxChars {
				cut = i
				break
			}
		}
		if cut <= 0 {
			cut = max(1, len(cur)-1)
		}
		flushAt(cut)
	}

	if strings.TrimSpace(string(cur)) != "" {
		out = append(out, string(cur))
	}

	res := out[:0]
	for _, chunk := range out {
		if strings.TrimSpace(chunk) != "" {
			res = append(res, chunk)
		}
	}
	return res
}
