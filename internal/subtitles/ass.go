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

// Package subtitles serializes narration units into ASS subtitle files.
//
// The writer emits a minimal [Script Info]/[V4+ Styles]/[Events]
// document with a soft-shadow default style tuned for Chinese-heavy
// vertical video, plus an optional "pop" emphasis style for keyword
// callouts. Subtitle text comes from the script, not from speech
// recognition, so it is exact by construction; timing comes from the
// aligner.
package subtitles

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Event is one subtitle line with optional emphasis phrases popped over
// it.
type Event struct {
	Start    float64
	End      float64
	Text     string
	Emphasis []string
}

// Style holds the rendering parameters of the subtitle track. Zero
// values select the defaults noted per field.
type Style struct {
	PlayResX int     // Script canvas width; default 1080.
	PlayResY int     // Script canvas height; default 1920.
	FontName string  // Default "MicrosoftYaHeiUI".
	FontSize int     // Default 48 on tall canvases, 40 otherwise.
	MarginV  int     // Bottom margin; default 130 tall, 70 otherwise.
	MarginL  int     // Left safe margin; default 40.
	MarginR  int     // Right safe margin; default 40.

	// Soft shadow instead of a hard outline.
	ShadowAlpha float64 // 0..1 shadow opacity; default 0.5.
	ShadowBlur  float64 // Default 3.0.
	ShadowX     int
	ShadowY     int // Default 2.

	MaxCharsPerLine int // Wrap limit in runes; default 22.
	MaxLines        int // 1 or 2; default 1.

	EmphasisEnable     bool
	EmphasisMaxPerLine int     // Default 1.
	EmphasisPopupSec   float64 // Default 0.9.
	EmphasisY          float64 // Vertical anchor as a height fraction; default 0.42.
}

func (s Style) withDefaults() Style {
	if s.PlayResX <= 0 {
		s.PlayResX = 1080
	}
	if s.PlayResY <= 0 {
		s.PlayResY = 1920
	}
	if s.FontName == "" {
		s.FontName = "MicrosoftYaHeiUI"
	}
	if s.FontSize <= 0 {
		if s.PlayResY >= 1600 {
			s.FontSize = 48
		} else {
			s.FontSize = 40
		}
	}
	if s.MarginV <= 0 {
		if s.PlayResY >= 1600 {
			s.MarginV = 130
		} else {
			s.MarginV = 70
		}
	}
	if s.MarginL <= 0 {
		s.MarginL = 40
	}
	if s.MarginR <= 0 {
		s.MarginR = 40
	}
	if s.ShadowAlpha <= 0 {
		s.ShadowAlpha = 0.5
	}
	if s.ShadowBlur <= 0 {
		s.ShadowBlur = 3.0
	}
	if s.ShadowY == 0 {
		s.ShadowY = 2
	}
	if s.MaxCharsPerLine <= 0 {
		s.MaxCharsPerLine = 22
	}
	if s.MaxLines <= 0 {
		s.MaxLines = 1
	}
	if s.EmphasisMaxPerLine <= 0 {
		s.EmphasisMaxPerLine = 1
	}
	if s.EmphasisPopupSec <= 0 {
		s.EmphasisPopupSec = 0.9
	}
	if s.EmphasisY <= 0 {
		s.EmphasisY = 0.42
	}
	return s
}

// FormatTime renders seconds as the ASS h:mm:ss.cc timestamp
// (centisecond precision, negatives clamped to zero).
func FormatTime(t float64) string {
	if t < 0 {
		t = 0
	}
	cs := int(math.Round(t * 100.0))
	s := cs / 100
	cc := cs % 100
	m := s / 60
	ss := s % 60
	h := m / 60
	mm := m % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, mm, ss, cc)
}

// SafeText neutralizes braces so subtitle text can never inject ASS
// override tags.
func SafeText(s string) string {
	s = strings.ReplaceAll(s, "{", "（")
	s = strings.ReplaceAll(s, "}", "）")
	return strings.TrimSpace(s)
}

var wrapPunctRe = regexp.MustCompile(`[，,、。！？!?;；：:]`)

// WrapText wraps subtitle text for display: prefer breaking on
// punctuation, hard-cut with an ellipsis only as a last resort. Lengths
// are in runes; maxLines is 1 or 2.
func WrapText(text string, maxCharsPerLine, maxLines int) string {
	s := strings.Join(strings.Fields(text), " ")
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= maxCharsPerLine {
		return s
	}

	if maxLines <= 1 {
		cut := -1
		for _, loc := range wrapPunctRe.FindAllStringIndex(s, -1) {
			pos := len([]rune(s[:loc[0]]))
			if pos < maxCharsPerLine {
				cut = pos + 1
			}
		}
		if cut > 0 {
			out := strings.TrimSpace(string(rs[:cut]))
			if or := []rune(out); len(or) > maxCharsPerLine {
				return string(or[:maxCharsPerLine-1]) + "…"
			}
			return out
		}
		return string(rs[:maxCharsPerLine-1]) + "…"
	}

	// Two-line mode: pick the breakpoint balancing the halves, trying
	// punctuation and spaces before a hard split.
	maxTotal := maxCharsPerLine * 2
	s2 := rs
	truncated := false
	if len(rs) > maxTotal {
		s2 = append(append([]rune{}, rs[:maxTotal-1]...), '…')
		truncated = true
	}
	var cand []int
	s2str := string(s2)
	for _, loc := range wrapPunctRe.FindAllStringIndex(s2str, -1) {
		cand = append(cand, len([]rune(s2str[:loc[0]]))+1)
	}
	for i, r := range s2 {
		if r == ' ' {
			cand = append(cand, i)
		}
	}
	cand = append(cand, maxCharsPerLine)

	target := len(s2) / 2
	bestB := -1
	bestScore := [2]int{1 << 30, 1 << 30}
	for _, b := range cand {
		if b <= 0 || b >= len(s2) {
			continue
		}
		left := strings.TrimSpace(string(s2[:b]))
		right := strings.TrimSpace(string(s2[b:]))
		ll, rl := len([]rune(left)), len([]rune(right))
		if ll == 0 || rl == 0 || ll > maxCharsPerLine || rl > maxCharsPerLine || ll < 2 || rl < 2 {
			continue
		}
		score := [2]int{abs(ll - target), abs(ll - rl)}
		if score[0] < bestScore[0] || (score[0] == bestScore[0] && score[1] < bestScore[1]) {
			bestScore = score
			bestB = b
		}
	}
	if bestB > 0 {
		return strings.TrimSpace(string(s2[:bestB])) + `\N` + strings.TrimSpace(string(s2[bestB:]))
	}

	left := strings.TrimSpace(string(s2[:maxCharsPerLine]))
	rightEnd := min(len(s2), maxCharsPerLine*2)
	right := strings.TrimSpace(string(s2[maxCharsPerLine:rightEnd]))
	if truncated {
		if rr := []rune(right); len(rr) > 0 {
			right = string(rr[:len(rr)-1]) + "…"
		} else {
			right = "…"
		}
	}
	return left + `\N` + right
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// WriteASS serializes the events with the given style.
//
// Logic Flow:
//  1. Emit the script header with the Default and Emph styles.
//  2. For each event, sanitize and wrap the text, then emit a Default
//     dialogue line carrying the soft-shadow override tags.
//  3. When emphasis is enabled, pop up to EmphasisMaxPerLine phrases
//     (longest first) with a scale-down animation, staggered within the
//     event's interval.
func WriteASS(w io.Writer, events []Event, style Style) error {
	st := style.withDefaults()

	// ASS colors are &HAABBGGRR with AA=00 opaque.
	a := int(math.Round(math.Max(0, math.Min(1, st.ShadowAlpha)) * 255.0))
	backColour := fmt.Sprintf("&H%02X000000", a)
	lineTags := fmt.Sprintf(`{\bord0\shad2\xshad%d\yshad%d\blur%.1f}`, st.ShadowX, st.ShadowY, st.ShadowBlur)
	emphSize := int(math.Round(float64(st.FontSize) * 1.6))
	emphMV := int(math.Round(float64(st.PlayResY) * 0.10))

	header := fmt.Sprintf(`[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,%s,0,0,0,0,100,100,0,0,1,0,2,2,%d,%d,%d,1
Style: Emph,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,%s,1,0,0,0,100,100,0,0,1,6,2,5,%d,%d,%d,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`,
		st.PlayResX, st.PlayResY,
		st.FontName, st.FontSize, backColour, st.MarginL, st.MarginR, st.MarginV,
		st.FontName, emphSize, backColour, st.MarginL, st.MarginR, emphMV,
	)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	for _, ev := range events {
		text := WrapText(SafeText(ev.Text), st.MaxCharsPerLine, st.MaxLines)
		if text == "" {
			continue
		}
		line := fmt.Sprintf("Dialogue: 0,%s,%s,Default,,0,0,0,,%s%s\n",
			FormatTime(ev.Start), FormatTime(ev.End), lineTags, text)
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}

		if !st.EmphasisEnable || len(ev.Emphasis) == 0 {
			continue
		}
		phrases := uniquePhrases(ev.Emphasis)
		if len(phrases) > st.EmphasisMaxPerLine {
			phrases = phrases[:st.EmphasisMaxPerLine]
		}
		x := st.PlayResX / 2
		y := int(float64(st.PlayResY) * st.EmphasisY)
		for j, p := range phrases {
			popStart := ev.Start + 0.10 + float64(j)*0.45
			popEnd := math.Min(ev.End, popStart+math.Max(0.2, st.EmphasisPopupSec))
			if popEnd <= popStart+0.05 {
				continue
			}
			tags := fmt.Sprintf(`{\an5\pos(%d,%d)\fad(0,180)\fscx180\fscy180\t(0,250,\fscx100\fscy100)}`, x, y)
			line := fmt.Sprintf("Dialogue: 1,%s,%s,Emph,,0,0,0,,%s%s\n",
				FormatTime(popStart), FormatTime(popEnd), tags, SafeText(p))
			if _, err := io.WriteString(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// uniquePhrases dedups and orders emphasis phrases longest-first so the
// most specific callout wins the limited slots.
func uniquePhrases(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := len([]rune(out[i])), len([]rune(out[j]))
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}
