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

// This file implements the duration-weighted partition path: when only
// sentence-level boundaries are trustworthy, a sentence's words are
// partitioned into contiguous groups whose spanned durations approximate
// weight-proportional shares of the sentence duration. This is the
// alternate timing pipeline for boundary-degenerate speech marks; the
// primary render path aligns against exhaustive word boundaries instead.
package align

import (
	"math"

	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/timing"
)

// PartitionWordsByWeights splits words into len(weights) contiguous
// groups, minimizing the summed relative error between each group's
// spanned duration and its weight-proportional share of totalDur. Solved
// by dynamic programming over word boundaries; when no feasible DP path
// exists (e.g. zero-duration words throughout), it falls back to a
// weight-proportional word-count split. Returns [start, end) word index
// pairs; if there are at least as many weights as words, every word
// becomes its own group.
func PartitionWordsByWeights(words []model.WordToken, weights []int, totalDur float64) [][2]int {
	n := len(words)
	k := len(weights)
	if k <= 0 || n <= 0 {
		return nil
	}
	if k >= n {
		out := make([][2]int, n)
		for i := range out {
			out[i] = [2]int{i, i + 1}
		}
		return out
	}

	ws := make([]int, k)
	sw := 0
	for i, w := range weights {
		ws[i] = max(1, w)
		sw += ws[i]
	}
	exp := make([]float64, k)
	for i, w := range ws {
		exp[i] = totalDur * float64(w) / float64(sw)
	}

	const neg = -1e18
	dp := make([]float64, n+1)
	for i := range dp {
		dp[i] = neg
	}
	dp[0] = 0
	bp := make([][]int, k+1)
	for i := range bp {
		bp[i] = make([]int, n+1)
		for j := range bp[i] {
			bp[i][j] = -1
		}
	}
	bp[0][0] = 0

	for i := 1; i <= k; i++ {
		ndp := make([]float64, n+1)
		for j := range ndp {
			ndp[j] = neg
		}
		ed := math.Max(0.25, exp[i-1])
		for j := i; j <= n; j++ {
			best := neg
			bestA := -1
			for a := i - 1; a < j; a++ {
				if dp[a] <= neg/2 {
					continue
				}
				dur := words[j-1].End - words[a].Start
				if dur <= 0 {
					continue
				}
				val := dp[a] - 0.75*math.Abs(dur-ed)/ed
				if val > best {
					best = val
					bestA = a
				}
			}
			if bestA >= 0 {
				ndp[j] = best
				bp[i][j] = bestA
			}
		}
		dp = ndp
	}

	if bp[k][n] < 0 {
		return greedyCountSplit(n, k, ws)
	}

	bounds := make([]int, k+1)
	bounds[k] = n
	j := n
	for i := k; i > 0; i-- {
		a := bp[i][j]
		if a < 0 {
			break
		}
		bounds[i-1] = a
		j = a
	}

	out := make([][2]int, k)
	for i := 0; i < k; i++ {
		out[i] = [2]int{bounds[i], bounds[i+1]}
	}
	return out
}

// greedyCountSplit distributes n words over k groups proportionally to
// the remaining weights. It ignores durations entirely, which is why it
// is only the fallback.
func greedyCountSplit(n, k int, ws []int) [][2]int {
	out := make([][2]int, 0, k)
	a := 0
	for i := 0; i < k-1; i++ {
		rest := 0
		for _, w := range ws[i:] {
			rest += w
		}
		target := float64(n-a) * float64(ws[i]) / float64(rest)
		take := max(1, int(math.Round(target)))
		b := min(n-(k-i-1), a+take)
		out = append(out, [2]int{a, b})
		a = b
	}
	out = append(out, [2]int{a, n})
	return out
}

// BuildUnitsFromMarks derives timed display units directly from the
// speech marks, using sentences as semantic containers and the DP
// partition to distribute each sentence's words across its split lines.
// This path needs no authored script: it is used when the script text is
// unavailable or word-level alignment is not wanted.
func BuildUnitsFromMarks(words []model.WordToken, sents []model.SentenceToken, maxSubChars int) []model.TimedUnit {
	if maxSubChars < 1 {
		maxSubChars = 1
	}
	if len(sents) == 0 {
		if len(words) == 0 {
			return nil
		}
		// No sentence events: treat the whole stream as one sentence.
		var b []byte
		for _, w := range words {
			b = append(b, w.Text...)
		}
		sents = []model.SentenceToken{{
			Text:  string(b),
			Start: words[0].Start,
			End:   words[len(words)-1].End,
		}}
	}

	var units []model.TimedUnit
	wi := 0
	nWords := len(words)
	for _, s := range sents {
		if s.End <= s.Start+1e-4 {
			continue
		}
		// Words inside this sentence's time range.
		for wi < nWords && words[wi].End <= s.Start+1e-4 {
			wi++
		}
		wj := wi
		var local []model.WordToken
		for wj < nWords && words[wj].Start < s.End-1e-4 {
			local = append(local, words[wj])
			wj++
		}

		parts := timing.SplitOneLine(s.Text, maxSubChars)
		if len(parts) == 0 {
			continue
		}

		if len(local) == 0 {
			// No word timings here; spread the sentence interval evenly.
			per := math.Max(0.05, (s.End-s.Start)/float64(len(parts)))
			t := s.Start
			for _, p := range parts {
				units = append(units, model.TimedUnit{Text: p, Start: t, End: math.Min(s.End, t + per)})
				t += per
			}
			units[len(units)-1].End = s.End
			continue
		}

		// Never create more parts than words; merge neighbors first.
		if len(parts) > len(local) {
			var mergedParts []string
			cur := ""
			for _, p := range parts {
				switch {
				case cur == "":
					cur = p
				case timing.VisibleLength(cur+p) <= maxSubChars:
					cur += p
				default:
					mergedParts = append(mergedParts, cur)
					cur = p
				}
			}
			if cur != "" {
				mergedParts = append(mergedParts, cur)
			}
			if len(mergedParts) <= len(local) {
				parts = mergedParts
			} else {
				parts = parts[:len(local)]
			}
		}

		weights := make([]int, len(parts))
		for i, p := range parts {
			weights[i] = max(1, timing.VisibleLength(p))
		}
		groups := PartitionWordsByWeights(local, weights, s.End-s.Start)
		for i, g := range groups {
			if i >= len(parts) {
				break
			}
			a := max(0, g[0])
			b := min(len(local), max(a+1, g[1]))
			units = append(units, model.TimedUnit{
				Text:  parts[i],
				Start: local[a].Start,
				End:   local[b-1].End,
			})
		}

		wi = wj
	}

	// Monotonicity pass with the 20ms floor.
	out := make([]model.TimedUnit, 0, len(units))
	prev := 0.0
	for _, u := range units {
		st := math.Max(prev, u.Start)
		en := math.Max(st+0.02, u.End)
		out = append(out, model.TimedUnit{Text: u.Text, Start: st, End: en})
		prev = en
	}
	return out
}
