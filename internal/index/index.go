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

// Package index rebuilds shot-level structure from a flat clip table
// and persists/loads the footage index artifact.
//
// The clip table is the unit of storage; shots are derived. Rebuilding
// shots from clips (instead of storing them) keeps the artifact a
// single flat list and guarantees the scheduler's shot view can never
// drift from the clips it ranks.
package index

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
)

// ErrAllClipsBlocked means content filtering removed every clip, so
// there is nothing left to schedule.
var ErrAllClipsBlocked = errors.New("all clips are blocked by content flags")

// ConsistencyError reports a clip record that cannot be placed into the
// shot structure. A malformed record is a build bug or a corrupted
// artifact; dropping it silently would skew shot dedup for every clip
// that follows, so the whole load fails instead.
type ConsistencyError struct {
	ClipIdx int
	ClipID  string
	Reason  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("index inconsistency at clip %d (%q): %s", e.ClipIdx, e.ClipID, e.Reason)
}

// ShotKey identifies a shot across the whole index. ShotIDs restart at
// zero per source, so the source path is part of the identity.
type ShotKey struct {
	SourcePath string
	ShotID     int
}

// ShotIndex is the derived shot-level view over a clip table: each shot
// with its widest observed bounds and the indices of the clips windowed
// from it.
type ShotIndex struct {
	shots map[ShotKey]*model.Shot
	keys  []ShotKey
}

// Get returns the shot for key, or nil when unknown.
func (si *ShotIndex) Get(key ShotKey) *model.Shot {
	return si.shots[key]
}

// Len returns the number of distinct shots.
func (si *ShotIndex) Len() int { return len(si.shots) }

// Keys returns shot keys ordered by (source path, shot id). The order
// is deterministic so that ranking ties downstream resolve the same way
// on every run.
func (si *ShotIndex) Keys() []ShotKey { return si.keys }

// BuildShotIndex derives the shot structure from a clip table.
//
// Inputs:
//   - clips: the artifact's clip table, any order.
//
// Outputs:
//   - *ShotIndex with widest-bounds shots and clip index lists.
//   - error: *ConsistencyError if any clip lacks a source path or a
//     non-negative shot id.
//
// Logic Flow:
//  1. Validate each clip's identity fields.
//  2. Resolve the clip's view of its shot bounds; a degenerate
//     shot_start/shot_end pair falls back to the clip's own span.
//  3. Merge into the shot map, widening bounds as clips of the same
//     shot disagree (clips are windows, each may see a sub-span).
//  4. Freeze a sorted key order.
func BuildShotIndex(clips []model.Clip) (*ShotIndex, error) {
	si := &ShotIndex{shots: make(map[ShotKey]*model.Shot)}
	for idx, c := range clips {
		if strings.TrimSpace(c.SourcePath) == "" {
			return nil, &ConsistencyError{ClipIdx: idx, ClipID: c.ClipID, Reason: "missing source path"}
		}
		if c.ShotID < 0 {
			return nil, &ConsistencyError{ClipIdx: idx, ClipID: c.ClipID, Reason: fmt.Sprintf("negative shot id %d", c.ShotID)}
		}

		ss, se := c.ShotStart, c.ShotEnd
		if se <= ss+1e-6 {
			ss, se = c.Start, c.End
		}

		key := ShotKey{SourcePath: c.SourcePath, ShotID: c.ShotID}
		sh, ok := si.shots[key]
		if !ok {
			si.shots[key] = &model.Shot{
				SourcePath: c.SourcePath,
				ShotID:     c.ShotID,
				Start:      ss,
				End:        se,
				ClipIdxs:   []int{idx},
			}
			continue
		}
		sh.ClipIdxs = append(sh.ClipIdxs, idx)
		if ss < sh.Start {
			sh.Start = ss
		}
		if se > sh.End {
			sh.End = se
		}
	}

	si.keys = make([]ShotKey, 0, len(si.shots))
	for k := range si.shots {
		si.keys = append(si.keys, k)
	}
	sort.Slice(si.keys, func(i, j int) bool {
		if si.keys[i].SourcePath != si.keys[j].SourcePath {
			return si.keys[i].SourcePath < si.keys[j].SourcePath
		}
		return si.keys[i].ShotID < si.keys[j].ShotID
	})
	return si, nil
}

// FilterBlocked removes clips carrying a blocking content flag, along
// with their vector rows.
//
// Inputs:
//   - clips and vecs: parallel slices (one vector row per clip).
//
// Outputs:
//   - the kept clips and rows, plus how many were dropped.
//   - ErrAllClipsBlocked when nothing survives.
//
// When the slices are not parallel the input is returned untouched;
// the dimension check at schedule time reports that case properly.
func FilterBlocked(clips []model.Clip, vecs [][]float32) ([]model.Clip, [][]float32, int, error) {
	if len(clips) != len(vecs) {
		return clips, vecs, 0, nil
	}
	keptClips := make([]model.Clip, 0, len(clips))
	keptVecs := make([][]float32, 0, len(vecs))
	dropped := 0
	for i, c := range clips {
		if c.Blocked() {
			dropped++
			continue
		}
		keptClips = append(keptClips, c)
		keptVecs = append(keptVecs, vecs[i])
	}
	if len(keptClips) == 0 && len(clips) > 0 {
		return nil, nil, dropped, ErrAllClipsBlocked
	}
	return keptClips, keptVecs, dropped, nil
}

// ProviderForArtifact re-creates a query embedder compatible with the
// backend recorded in the artifact. Query vectors must live in the same
// space as the stored clip vectors; using the recorded backend is the
// only way to guarantee that.
//
// A "localhash" record rebuilds the offline provider at the recorded
// dimension. Anything else falls back to the injected provider, which
// must report the same type; a mismatch is an error, never a silent
// re-embed.
func ProviderForArtifact(meta model.EmbeddingMeta, fallback embed.Provider) (embed.Provider, error) {
	t := strings.ToLower(meta.Type)
	if strings.Contains(t, "localhash") {
		return embed.NewLocalHashProvider(meta.Dim), nil
	}
	if fallback == nil {
		return nil, fmt.Errorf("index was built with embedding backend %q and no matching provider is configured; rebuild the index or configure that backend", meta.Type)
	}
	if ft := strings.ToLower(fallback.Meta().Type); t != "" && ft != t {
		return nil, fmt.Errorf("index embedding backend %q does not match configured backend %q; rebuild the index or align embedding settings", meta.Type, fallback.Meta().Type)
	}
	return fallback, nil
}

// CheckDims verifies query vectors and clip vectors share one
// dimension. Dimension drift means the index was built under different
// embedding settings and must be rebuilt.
func CheckDims(queryVecs, clipVecs [][]float32) error {
	if len(queryVecs) == 0 || len(clipVecs) == 0 {
		return nil
	}
	qd, cd := len(queryVecs[0]), len(clipVecs[0])
	if qd != cd {
		return fmt.Errorf("embedding dim mismatch: queries=%d clips=%d; rebuild the index or align embedding settings", qd, cd)
	}
	return nil
}
