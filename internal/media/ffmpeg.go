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

// Package media wraps the ffmpeg/ffprobe invocations the pipeline
// needs: proxy transcoding, duration probing, scene-cut detection, and
// frame extraction. Heavy analysis always runs against a low-res,
// silent proxy so indexing stays usable on weak CPUs; only final frame
// extraction touches the original file.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
)

// Tools holds resolved paths to the ffmpeg and ffprobe binaries.
type Tools struct {
	FFmpeg  string
	FFprobe string
}

// FindTools resolves the binaries, preferring explicit paths and
// falling back to PATH lookup. Explicit paths that do not exist are an
// error, not a silent fallback.
func FindTools(ffmpegPath, ffprobePath string) (*Tools, error) {
	resolve := func(explicit, name string) (string, error) {
		if explicit != "" {
			if _, err := os.Stat(explicit); err != nil {
				return "", fmt.Errorf("configured %s binary %q: %w", name, explicit, err)
			}
			return explicit, nil
		}
		p, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("%s not found in PATH; install it or set an explicit path", name)
		}
		return p, nil
	}
	ffmpeg, err := resolve(ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolve(ffprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	return &Tools{FFmpeg: ffmpeg, FFprobe: ffprobe}, nil
}

// SniffVideo verifies the file header looks like a video before any
// transcode is attempted. Catches renamed archives and truncated
// downloads with a clear message instead of an opaque ffmpeg failure.
func SniffVideo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	head := make([]byte, 261)
	n, _ := f.Read(head)
	kind, err := filetype.Match(head[:n])
	if err != nil {
		return fmt.Errorf("sniff source %s: %w", path, err)
	}
	if kind.MIME.Type != "video" {
		return fmt.Errorf("source %s is not a video (detected %q)", path, kind.MIME.Value)
	}
	return nil
}

// run executes one tool invocation, returning combined output for
// diagnostics.
func run(ctx context.Context, bin string, args ...string) (string, error) {
	slog.Debug("exec", "bin", filepath.Base(bin), "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 2000 {
			msg = msg[len(msg)-2000:]
		}
		return string(out), fmt.Errorf("%s failed: %w: %s", filepath.Base(bin), err, msg)
	}
	return string(out), nil
}

// EnsureProxy transcodes src into a low-res silent proxy at dst,
// skipping the work when the proxy already exists.
func (t *Tools) EnsureProxy(ctx context.Context, src, dst string, proxyHeight int) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := SniffVideo(src); err != nil {
		return err
	}
	if proxyHeight <= 0 {
		proxyHeight = 360
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create proxy dir: %w", err)
	}
	_, err := run(ctx, t.FFmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-vf", fmt.Sprintf("scale=-2:%d", proxyHeight),
		"-an",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		dst,
	)
	return err
}

// ProbeDuration returns the container duration of path in seconds.
func (t *Tools) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := run(ctx, t.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration of %s: %w", path, err)
	}
	return dur, nil
}

var ptsTimeRe = regexp.MustCompile(`pts_time:([0-9]+(?:\.[0-9]+)?)`)

// DetectSceneCuts runs ffmpeg scene detection against the (proxy)
// video and returns cut timestamps in seconds, millisecond-deduplicated
// in order of appearance. threshold is clamped to [0, 1] and the
// analysis frame rate to [0.5, 30]; showinfo prints only frames that
// pass the select filter, so output stays bounded.
func (t *Tools) DetectSceneCuts(ctx context.Context, path string, threshold, fps float64) ([]float64, error) {
	threshold = math.Max(0.0, math.Min(1.0, threshold))
	fps = math.Max(0.5, math.Min(30.0, fps))

	vf := fmt.Sprintf("fps=%.3f,select='gt(scene,%.4f)',showinfo", fps, threshold)
	cmd := exec.CommandContext(ctx, t.FFmpeg,
		"-hide_banner", "-nostats", "-loglevel", "info",
		"-i", path,
		"-an", "-sn", "-dn",
		"-vf", vf,
		"-f", "null", "-",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 2000 {
			msg = msg[len(msg)-2000:]
		}
		return nil, fmt.Errorf("scene detection failed: %w: %s", err, msg)
	}

	return ParseSceneCutTimes(string(out)), nil
}

// ParseSceneCutTimes extracts showinfo pts_time values from detector
// output, deduplicated at millisecond precision preserving order.
func ParseSceneCutTimes(out string) []float64 {
	var times []float64
	seen := make(map[float64]bool)
	for _, m := range ptsTimeRe.FindAllStringSubmatch(out, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		v = math.Round(v*1000) / 1000
		if !seen[v] {
			seen[v] = true
			times = append(times, v)
		}
	}
	return times
}

// ExtractFrame writes one 640px-wide JPEG sampled at t seconds of src.
// An existing output file is reused: frame extraction is resumable by
// construction.
func (t *Tools) ExtractFrame(ctx context.Context, src string, at float64, outJpg string) error {
	if _, err := os.Stat(outJpg); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outJpg), 0o755); err != nil {
		return fmt.Errorf("create frames dir: %w", err)
	}
	_, err := run(ctx, t.FFmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", fmt.Sprintf("%.3f", at),
		"-i", src,
		"-vf", "scale=640:-2",
		// A single JPG output, not an image sequence.
		"-update", "1",
		"-frames:v", "1",
		"-q:v", "4",
		outJpg,
	)
	return err
}
