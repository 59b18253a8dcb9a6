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

// Package script turns authored narration text into narration units: it
// splits the script on punctuation, parses inline emphasis and tag
// markup, derives the subtitle display form of each line, and mines the
// keyword hints the scheduler uses to rerank footage matches.
//
// Splitting is the contract the whole timeline hangs on: one unit becomes
// one subtitle line and one scheduled footage segment, so the split rules
// are deliberately rigid and documented on SplitScript.
package script

import (
	"regexp"
	"strings"
)

// splitRunes are the characters a unit boundary may fall on. Punctuation
// stays attached to the unit it terminates.
var splitRunes = map[rune]bool{}

// dashRunes are the subset of split characters that occur doubled
// (Chinese 破折号 "——", ASCII "--"); a run of them splits only once.
var dashRunes = map[rune]bool{'—': true, '–': true, '－': true, '-': true}

func init() {
	for _, r := range "，。？！,.?!；;—–－-" {
		splitRunes[r] = true
	}
}

var trailingSplitPunct = regexp.MustCompile(`[，,。.？?!！；;—–－\-]+$`)

// SplitScript splits a narration script into units. The hard rules:
// boundaries are newlines, comma/period/question/exclamation (CJK and
// ASCII), semicolons, and dashes; punctuation stays attached to the
// previous unit; text inside double quotes (“...” or "...") is atomic;
// a unit that is nothing but a quoted fragment is merged back into its
// predecessor so a spoken quotation never floats alone.
func SplitScript(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	var buf []rune

	flush := func() {
		s := strings.TrimSpace(string(buf))
		buf = buf[:0]
		if s != "" {
			out = append(out, s)
		}
	}

	runes := []rune(text)
	inQuote := false
	for i, r := range runes {
		if r == '\r' {
			continue
		}
		if r == '\n' {
			flush()
			continue
		}

		switch r {
		case '“':
			inQuote = true
		case '”':
			inQuote = false
		case '"':
			inQuote = !inQuote
		}

		buf = append(buf, r)

		if inQuote {
			continue
		}

		if splitRunes[r] {
			// A dash run like "——" or "--" splits once, after the run.
			if dashRunes[r] && i+1 < len(runes) && dashRunes[runes[i+1]] {
				continue
			}
			flush()
		}
	}
	flush()

	// Merge units that are entirely a quoted fragment into the previous
	// unit: the quotation belongs to the sentence that introduced it.
	var merged []string
	for _, s := range out {
		if len(merged) > 0 && isQuotedOnly(s) {
			merged[len(merged)-1] = strings.TrimRight(merged[len(merged)-1], " \t") + s
		} else {
			merged = append(merged, s)
		}
	}
	return merged
}

// isQuotedOnly reports whether the unit, ignoring trailing split
// punctuation, is a single fully quoted span.
func isQuotedOnly(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	t = strings.TrimSpace(trailingSplitPunct.ReplaceAllString(t, ""))
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "“") && strings.Contains(t, "”") {
		return strings.HasSuffix(t, "”")
	}
	if strings.HasPrefix(t, `"`) && strings.Count(t, `"`) >= 2 && strings.HasSuffix(t, `"`) {
		return true
	}
	return false
}
