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

// Package testutil provides utility functions and fixture data to
// support the application's test suite: a test-runtime configuration
// singleton, a sample speech-mark payload, and a small clip table with
// matching vectors for scheduler and index tests.
package testutil

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/muziris/go-gist-video/internal/config"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/embed"
)

// StateManager acts as a simple in-memory cache for the application
// configuration during test runs, so the TOML files are read only once
// per test binary.
type StateManager struct {
	config *config.Config
}

// state holds the singleton instance of StateManager.
var state = &StateManager{}

// HandleErr fails the test when err is not nil. A convenience to
// reduce boilerplate error checking in tests.
//
// Inputs:
//   - err: The error to check.
//   - t: The *testing.T object from the current test.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestSpeechMarksText returns a speech-mark JSON payload in the TTS
// engine's container format: a "Metadata" list of boundary events with
// offsets and durations in 100ns ticks. Total spoken span is 0 to 3.2
// seconds across two sentences and six words.
//
// Returns:
//   - A string containing the JSON payload of a speech-marks file.
func GetTestSpeechMarksText() string {
	return `{
  "Metadata": [
    { "Type": "SentenceBoundary", "Data": { "Offset": 0, "Duration": 15000000, "text": { "Text": "主角走进森林。" } } },
    { "Type": "WordBoundary", "Data": { "Offset": 0, "Duration": 4000000, "text": { "Text": "主角" } } },
    { "Type": "WordBoundary", "Data": { "Offset": 4000000, "Duration": 5000000, "text": { "Text": "走进" } } },
    { "Type": "WordBoundary", "Data": { "Offset": 9000000, "Duration": 6000000, "text": { "Text": "森林" } } },
    { "Type": "SentenceBoundary", "Data": { "Offset": 16000000, "Duration": 16000000, "text": { "Text": "夜幕降临了。" } } },
    { "Type": "WordBoundary", "Data": { "Offset": 16000000, "Duration": 6000000, "text": { "Text": "夜幕" } } },
    { "Type": "WordBoundary", "Data": { "Offset": 22000000, "Duration": 6000000, "text": { "Text": "降临" } } },
    { "Type": "WordBoundary", "Data": { "Offset": 28000000, "Duration": 4000000, "text": { "Text": "了" } } },
    { "Type": "Viseme", "Data": { "Offset": 0 } }
  ]
}`
}

// GetTestClips returns a small clip table spanning two source videos
// and three shots, with captions distinctive enough for embedding
// similarity tests to rank deterministically.
//
// Returns:
//   - A slice of model.Clip fixtures.
func GetTestClips() []model.Clip {
	return []model.Clip{
		{
			ClipID: "v0001_c00000", SourcePath: "a.mp4", ShotID: 0,
			Start: 0.0, End: 4.0, ShotStart: 0.0, ShotEnd: 6.0,
			Text: "主角在森林里奔跑，树影晃动",
		},
		{
			ClipID: "v0001_c00001", SourcePath: "a.mp4", ShotID: 1,
			Start: 6.0, End: 10.0, ShotStart: 6.0, ShotEnd: 12.0,
			Text: "夜晚的城市天际线，灯光闪烁",
		},
		{
			ClipID: "v0002_c00000", SourcePath: "b.mp4", ShotID: 0,
			Start: 1.0, End: 5.0, ShotStart: 0.0, ShotEnd: 8.0,
			Text: "海边日出，浪花拍打礁石",
		},
	}
}

// GetTestClipVectors embeds the fixture clips' caption text with the
// deterministic local hashing provider, so index and scheduler tests
// get a consistent clip/vector pair.
//
// Inputs:
//   - dim: The vector dimension to embed at.
//
// Returns:
//   - The clip fixtures and their matching vector rows.
func GetTestClipVectors(dim int) ([]model.Clip, [][]float32) {
	clips := GetTestClips()
	texts := make([]string, len(clips))
	for i := range clips {
		texts[i] = clips[i].Text
	}
	provider := embed.NewLocalHashProvider(dim)
	vecs, err := provider.EmbedTexts(context.Background(), texts)
	if err != nil {
		log.Fatalf("failed to embed test clips: %v\n", err)
	}
	return clips, vecs
}

// SetupOS configures the environment variables the configuration
// loader depends on, pointing it at the test runtime so the loader
// picks up `.env.test.toml` overrides.
//
// Returns:
//   - An error if setting any environment variable fails.
func SetupOS() (err error) {
	err = os.Setenv(config.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	err = os.Setenv(config.EnvConfigRuntime, "test")
	return err
}

// GetConfig is a singleton accessor for the test configuration. The
// configuration is loaded from the TOML files once and cached for
// subsequent calls.
//
// Returns:
//   - A pointer to the loaded and cached config.Config struct.
func GetConfig() *config.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = cfg
	}
	return state.config
}
