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

// Package config_test contains unit tests for hierarchical TOML
// loading and the viewport-to-pixel subtitle style conversion.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/muziris/go-gist-video/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaultsOnly verifies that with no config files present the
// defaults carry the pipeline parameters.
func TestLoadDefaultsOnly(t *testing.T) {
	t.Setenv(config.EnvConfigFilePrefix, t.TempDir())
	t.Setenv(config.EnvConfigRuntime, "test")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "scene", cfg.Media.SliceMode)
	assert.InDelta(t, 0.35, cfg.Media.SceneThreshold, 1e-9)
	assert.InDelta(t, 4.5, cfg.Media.ClipTargetSec, 1e-9)
	assert.Equal(t, 25, cfg.Render.OutputFps)
	assert.InDelta(t, 0.05, cfg.Render.KeywordBoost, 1e-9)
	assert.Equal(t, 512, cfg.Embedding.Dim)
}

// TestLoadHierarchy verifies the runtime file overrides the base file,
// which overrides the defaults, key by key.
func TestLoadHierarchy(t *testing.T) {
	dir := t.TempDir()
	base := `
[application]
name = "gist-video"
data_dir = "/srv/gist"

[render]
output_fps = 30
keyword_boost = 0.10
`
	override := `
[render]
output_fps = 24
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test.toml"), []byte(override), 0o644))
	t.Setenv(config.EnvConfigFilePrefix, dir)
	t.Setenv(config.EnvConfigRuntime, "test")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/gist", cfg.Application.DataDir)
	// Runtime file wins.
	assert.Equal(t, 24, cfg.Render.OutputFps)
	// Base file survives where the runtime file is silent.
	assert.InDelta(t, 0.10, cfg.Render.KeywordBoost, 1e-9)
	// Defaults survive where both files are silent.
	assert.InDelta(t, 0.06, cfg.Render.SubtitleHeavyPenalty, 1e-9)
}

// TestLoadRejectsMalformed verifies a bad TOML file is an error, not a
// silent fallback to defaults.
func TestLoadRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte("[render\noops"), 0o644))
	t.Setenv(config.EnvConfigFilePrefix, dir)
	t.Setenv(config.EnvConfigRuntime, "test")

	_, err := config.Load()
	require.Error(t, err)
}

// TestValidate verifies structurally fatal values are rejected.
func TestValidate(t *testing.T) {
	cfg := config.NewConfig()
	require.NoError(t, cfg.Validate())

	cfg.Media.ClipMaxSec = cfg.Media.ClipMinSec - 1
	require.Error(t, cfg.Validate())

	cfg = config.NewConfig()
	cfg.Embedding.Dim = 0
	require.Error(t, cfg.Validate())
}

// TestSubtitleStyle verifies the vh/vw percentages land on the
// expected pixel values for a 1920x1080 canvas.
func TestSubtitleStyle(t *testing.T) {
	r := config.NewConfig().Render
	st := r.SubtitleStyle()
	assert.Equal(t, 1920, st.PlayResX)
	assert.Equal(t, 1080, st.PlayResY)
	assert.Equal(t, 65, st.FontSize)  // 1080 * 6.0%
	assert.Equal(t, 151, st.MarginV)  // 1080 * 14.0%
	assert.Equal(t, 96, st.MarginL)   // 1920 * 5.0%
	assert.Equal(t, 96, st.MarginR)
	assert.Equal(t, "MicrosoftYaHeiUI", st.FontName)
}
