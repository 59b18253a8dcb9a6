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

// This file parses the inline markup an author may put on a narration
// line and derives the subtitle display form of the cleaned text.
// Two markup forms exist: emphasis ([[phrase]] or 【phrase】), whose
// phrase stays visible in the line, and match tags (#keyword), which are
// removed from the visible text and only steer footage matching.
package script

import (
	"regexp"
	"strings"
)

var (
	inlineEmphRe = regexp.MustCompile(`\[\[(.+?)\]\]|【(.+?)】`)
	hashTagRe    = regexp.MustCompile(`#([0-9A-Za-z_\x{4e00}-\x{9fff}]{2,})`)
	spaceRe      = regexp.MustCompile(`\s+`)

	subDisplayDropRe = regexp.MustCompile("[，,。.、；;：:…—\\-《》“”‘’\"'（）()【】\\[\\]{}]+")
	subEndKeepRe     = regexp.MustCompile(`([？！?!]+)$`)
)

// ParseLineMarkup strips markup from one script line.
//
// Outputs:
//   - clean: The line with emphasis brackets unwrapped and #tags removed,
//     whitespace collapsed. This is what alignment and embedding see.
//   - emphasis: The emphasis phrases, deduplicated in order of appearance.
//   - tags: The #tag keywords, deduplicated in order of appearance.
func ParseLineMarkup(s string) (clean string, emphasis []string, tags []string) {
	text := strings.TrimSpace(s)

	for _, m := range inlineEmphRe.FindAllStringSubmatch(text, -1) {
		p := strings.TrimSpace(m[1] + m[2])
		if p != "" {
			emphasis = append(emphasis, p)
		}
	}
	text = inlineEmphRe.ReplaceAllString(text, "$1$2")

	for _, m := range hashTagRe.FindAllStringSubmatch(text, -1) {
		t := strings.TrimSpace(m[1])
		if t != "" {
			tags = append(tags, t)
		}
	}
	text = hashTagRe.ReplaceAllString(text, "")

	clean = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	return clean, uniq(emphasis), uniq(tags)
}

// uniq removes duplicates while preserving first-seen order.
func uniq(xs []string) []string {
	var out []string
	seen := make(map[string]bool, len(xs))
	for _, x := range xs {
		if x != "" && !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

// SubtitleDisplayText converts a clean narration line into what the
// viewer reads: mid-line punctuation is dropped entirely (it only ever
// existed to drive splitting), and only a trailing run of ?/! survives,
// capped at two marks.
func SubtitleDisplayText(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}

	end := ""
	if m := subEndKeepRe.FindStringSubmatchIndex(t); m != nil {
		endRunes := []rune(t[m[2]:m[3]])
		if len(endRunes) > 2 {
			endRunes = endRunes[len(endRunes)-2:]
		}
		end = string(endRunes)
		t = strings.TrimSpace(t[:m[0]])
	}

	t = subDisplayDropRe.ReplaceAllString(t, "")
	for _, drop := range []string{"？", "！", "?", "!"} {
		t = strings.ReplaceAll(t, drop, "")
	}
	t = strings.TrimSpace(t)
	if t == "" {
		return end
	}
	return t + end
}
