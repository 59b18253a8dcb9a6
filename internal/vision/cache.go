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

// This file implements the persistent caption cache. Captioning is the
// slowest and most expensive index stage, so results are cached per
// frame key and survive across index rebuilds; only frames whose
// caption is still missing are re-requested. Failures are first-class
// states with a retry count, not magic strings inside caption text.
package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CaptionStatus is the lifecycle of one frame's caption.
type CaptionStatus int

const (
	// CaptionPending means no caption attempt has completed yet.
	CaptionPending CaptionStatus = iota
	// CaptionFailed means every attempt so far errored; RetryCount says
	// how many.
	CaptionFailed
	// CaptionDone means Text holds the caption.
	CaptionDone
)

var statusNames = map[CaptionStatus]string{
	CaptionPending: "pending",
	CaptionFailed:  "failed",
	CaptionDone:    "done",
}

func (s CaptionStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalJSON stores the status by name so the cache file stays
// readable and stable across code changes.
func (s CaptionStatus) MarshalJSON() ([]byte, error) {
	n, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown caption status %d", int(s))
	}
	return json.Marshal(n)
}

func (s *CaptionStatus) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	for st, name := range statusNames {
		if name == n {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown caption status %q", n)
}

// CaptionState is the cached state of one frame's caption.
type CaptionState struct {
	Status     CaptionStatus `json:"status"`
	Text       string        `json:"text,omitempty"`
	RetryCount int           `json:"retry_count,omitempty"`
}

// Missing reports whether this frame still needs a caption attempt.
// A done state with empty text counts as missing: the backend answered
// but said nothing usable.
func (s CaptionState) Missing() bool {
	return s.Status != CaptionDone || strings.TrimSpace(s.Text) == ""
}

// cacheFile is the on-disk layout.
type cacheFile struct {
	CacheKey string                  `json:"cache_key"`
	Captions map[string]CaptionState `json:"captions"`
}

// Cache is a JSON-persisted frame-key -> CaptionState map, keyed by a
// provider cache key. Loading under a different key starts empty:
// captions from another model or prompt version must never leak into
// the new index.
type Cache struct {
	mu      sync.Mutex
	path    string
	key     string
	entries map[string]CaptionState
	dirty   int
}

// LoadCache reads the cache at path, discarding it when the stored
// cache key differs from key. A missing file yields an empty cache.
func LoadCache(path, key string) (*Cache, error) {
	c := &Cache{path: path, key: key, entries: make(map[string]CaptionState)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read caption cache: %w", err)
	}
	var f cacheFile
	if err := json.Unmarshal(raw, &f); err != nil {
		// A corrupt cache is rebuilt, not fatal.
		return c, nil
	}
	if f.CacheKey != key {
		return c, nil
	}
	if f.Captions != nil {
		c.entries = f.Captions
	}
	return c, nil
}

// Get returns the state for a frame key; an unknown key is pending.
func (c *Cache) Get(key string) CaptionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

// SetDone records a successful caption and resets the retry count.
func (c *Cache) SetDone(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = CaptionState{Status: CaptionDone, Text: strings.TrimSpace(text)}
	c.dirty++
}

// MarkFailed records one more failed attempt for the frame key.
func (c *Cache) MarkFailed(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.entries[key]
	c.entries[key] = CaptionState{Status: CaptionFailed, RetryCount: prev.RetryCount + 1}
	c.dirty++
}

// FailedCount returns how many cached frames are in the failed state.
func (c *Cache) FailedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.entries {
		if s.Status == CaptionFailed {
			n++
		}
	}
	return n
}

// Dirty returns the number of mutations since the last save.
func (c *Cache) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Save writes the cache atomically and resets the dirty counter.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.MarshalIndent(cacheFile{CacheKey: c.key, Captions: c.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode caption cache: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(raw); err != nil {
		return fmt.Errorf("write caption cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close caption cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("rename caption cache: %w", err)
	}
	c.dirty = 0
	return nil
}

// SaveEvery persists when at least n mutations accumulated. Bounds the
// work lost to a crash during a long caption run.
func (c *Cache) SaveEvery(n int) error {
	if n <= 0 {
		n = 1
	}
	if c.Dirty() >= n {
		return c.Save()
	}
	return nil
}
