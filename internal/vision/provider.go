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

// Package vision produces searchable caption text for sampled frames.
//
// Captions are the bridge between footage and narration: the embedder
// vectorizes them and the scheduler matches narration units against
// those vectors. A caption is one line of structured text; content
// flags ride on the same line behind a " FLAGS:" suffix so one cache
// entry carries both.
package vision

import (
	"context"
	"sort"
	"strings"

	"github.com/muziris/go-gist-video/internal/core/model"
)

// CaptionProvider turns frame images into caption strings.
//
// CaptionImages captions each image independently. CaptionImageGroups
// captions each group (the frames of one clip) into a single string,
// letting the model use multi-frame context. Both return exactly one
// string per input, in order.
//
// CacheKey identifies the captioning configuration; any change to the
// backend, model, or prompt must change the key, which invalidates the
// whole caption cache.
type CaptionProvider interface {
	CaptionImages(ctx context.Context, imagePaths []string) ([]string, error)
	CaptionImageGroups(ctx context.Context, groups [][]string) ([]string, error)
	CacheKey() string
}

// NullCaptionProvider disables captioning. Every frame gets an empty
// caption, so matching degrades to nothing but the pipeline still runs
// end to end.
type NullCaptionProvider struct{}

func (NullCaptionProvider) CaptionImages(_ context.Context, imagePaths []string) ([]string, error) {
	return make([]string, len(imagePaths)), nil
}

func (NullCaptionProvider) CaptionImageGroups(_ context.Context, groups [][]string) ([]string, error) {
	return make([]string, len(groups)), nil
}

func (NullCaptionProvider) CacheKey() string { return "null" }

// flagsSuffix separates the searchable caption text from the content
// flags on one cached line.
const flagsSuffix = " FLAGS:"

// CaptionText returns the searchable part of a caption, with any flags
// suffix removed.
func CaptionText(caption string) string {
	if i := strings.Index(caption, flagsSuffix); i >= 0 {
		caption = caption[:i]
	}
	return strings.TrimSpace(caption)
}

// MergeCaptions joins per-frame captions into one clip text for
// embedding: flags stripped, duplicates removed preserving first
// occurrence, joined with " ; ".
func MergeCaptions(captions []string) string {
	seen := make(map[string]bool, len(captions))
	var parts []string
	for _, c := range captions {
		t := CaptionText(c)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		parts = append(parts, t)
	}
	return strings.Join(parts, " ; ")
}

// FlagsFromCaptions collects the union of content flags across a
// clip's frame captions, lowercased and sorted.
func FlagsFromCaptions(captions []string) []string {
	set := make(map[string]bool)
	for _, c := range captions {
		i := strings.Index(c, flagsSuffix)
		if i < 0 {
			continue
		}
		for _, f := range strings.Split(c[i+len(flagsSuffix):], ",") {
			f = strings.ToLower(strings.TrimSpace(f))
			if f != "" {
				set[f] = true
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// BlockedByFlags reports whether any flag in the list excludes the
// clip from scheduling.
func BlockedByFlags(flags []string) bool {
	for _, f := range flags {
		if model.BlockingFlags[f] {
			return true
		}
	}
	return false
}
