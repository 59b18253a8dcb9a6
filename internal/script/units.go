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

package script

import "github.com/muziris/go-gist-video/internal/core/model"

// ParseScript runs the full script front-end: split into units, parse
// markup, derive display text, and mine hints. Units whose clean text is
// empty (markup-only lines) are dropped. extraHints are appended to every
// unit's hint mining input, typically globally configured emphasis
// phrases.
func ParseScript(text string, extraHints []string) []model.NarrationUnit {
	var units []model.NarrationUnit
	for _, raw := range SplitScript(text) {
		clean, emph, tags := ParseLineMarkup(raw)
		if clean == "" {
			continue
		}
		units = append(units, model.NarrationUnit{
			Raw:      raw,
			Clean:    clean,
			Display:  SubtitleDisplayText(clean),
			Emphasis: emph,
			Tags:     tags,
			Hints:    ExtractHints(clean, emph, tags, extraHints),
		})
	}
	return units
}
