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

// This file mines match hints from a narration line. Hints are checked
// as literal substrings of clip caption text during scheduling, so the
// goal is recall on the words a caption would actually contain, not
// linguistic precision. Alias expansions translate common metaphors into
// the concrete visual vocabulary captions use.
package script

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// autoKeywordRe extracts candidate keywords: Latin runs of three or more
// letters, or CJK runs of two or more ideographs.
var autoKeywordRe = regexp.MustCompile(`[A-Za-z]{3,}|[\x{4e00}-\x{9fff}]{2,}`)

// stopwords are high-frequency function words that would hit almost any
// caption and dilute the keyword-preference ranking.
var stopwords = map[string]bool{
	"我们": true, "你们": true, "他们": true, "这个": true, "那个": true,
	"这种": true, "那种": true, "于是": true, "然后": true, "但是": true,
	"因为": true, "所以": true, "如果": true, "就是": true, "一个": true,
	"一些": true, "开始": true, "最后": true,
}

// hintAlias maps a script phrase pattern to the caption vocabulary it
// should also match. Intentionally shallow: substring boosts, not
// synonymy.
type hintAlias struct {
	pattern *regexp.Regexp
	adds    []string
}

var hintAliases = []hintAlias{
	{regexp.MustCompile(`脑洞大开`), []string{"爆头", "头部受伤", "流血", "血", "手枪", "枪", "枪击", "开枪"}},
	{regexp.MustCompile(`来一枪|开一枪|给自己来一枪|一枪`), []string{"手枪", "枪", "枪击", "开枪", "血", "流血"}},
	{regexp.MustCompile(`头(上|里)?都是血|满头血|血淋淋`), []string{"头部", "受伤", "流血", "血迹", "血"}},
	{regexp.MustCompile(`笔记|日记|手稿|记事本`), []string{"笔记", "书", "纸张", "翻书", "翻页", "手写"}},
	{regexp.MustCompile(`醒来|苏醒`), []string{"醒来", "躺着", "房间", "床"}},
}

// ExtractHints builds the keyword hint list for one narration line from
// its markup (emphasis phrases and #tags), caller-supplied extras, and
// keywords mined from the clean text itself. The result is deduplicated,
// ordered longest-first for better substring hit rates, and capped at 12.
func ExtractHints(cleanText string, emphasis, tags, extra []string) []string {
	var hints []string
	for _, x := range emphasis {
		if utf8.RuneCountInString(x) >= 2 {
			hints = append(hints, x)
		}
	}
	for _, x := range tags {
		if utf8.RuneCountInString(x) >= 2 {
			hints = append(hints, x)
		}
	}
	for _, x := range extra {
		x = strings.TrimSpace(x)
		if utf8.RuneCountInString(x) >= 2 {
			hints = append(hints, x)
		}
	}

	for _, w := range autoKeywordRe.FindAllString(cleanText, -1) {
		w = strings.TrimSpace(w)
		if w == "" || stopwords[w] {
			continue
		}
		if utf8.RuneCountInString(w) >= 2 {
			hints = append(hints, w)
		}
	}

	for _, alias := range hintAliases {
		if alias.pattern.MatchString(cleanText) {
			for _, a := range alias.adds {
				if utf8.RuneCountInString(a) >= 2 {
					hints = append(hints, a)
				}
			}
		}
	}

	sort.SliceStable(hints, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(hints[i]), utf8.RuneCountInString(hints[j])
		if li != lj {
			return li > lj
		}
		return hints[i] < hints[j]
	})
	out := uniq(hints)
	if len(out) > 12 {
		out = out[:12]
	}
	return out
}
