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

// This file defines the first command of the render workflow: it loads
// the TTS speech marks, probes the narration audio, and cross-checks
// the two clocks before anything downstream trusts them.
package commands

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/muziris/go-gist-video/internal/core/cor"
	"github.com/muziris/go-gist-video/internal/core/model"
	"github.com/muziris/go-gist-video/internal/media"
	"github.com/muziris/go-gist-video/internal/timing"
)

// MarksLoader is a command that parses the speech-mark file and probes
// the narration audio duration.
type MarksLoader struct {
	cor.BaseCommand
	tools *media.Tools
}

// NewMarksLoader is the constructor for the MarksLoader command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - tools: Resolved ffmpeg/ffprobe binaries.
//
// Outputs:
//   - *MarksLoader: A pointer to the newly instantiated command.
func NewMarksLoader(name string, tools *media.Tools) *MarksLoader {
	return &MarksLoader{BaseCommand: *cor.NewBaseCommand(name), tools: tools}
}

// Execute loads the word tokens and the audio duration, and rejects
// mismatched inputs.
//
// Logic Flow:
//  1. Resolve the marks path; the default sits next to the audio with
//     a .json extension.
//  2. Parse the speech marks into word tokens.
//  3. Probe the audio duration with ffprobe.
//  4. Compare the last word's end against the audio length. Marks that
//     outrun the audio by more than half a second, or disagree with it
//     by more than five, mean the files belong to different takes and
//     the render is refused. A drift beyond 0.8s only warns.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *MarksLoader) Execute(context cor.Context) {
	req := context.Get(c.GetInputParam()).(*model.RenderRequest)
	reporter := reporterFrom(context)
	ctx := context.GetContext()

	marksPath := req.MarksPath
	if marksPath == "" {
		marksPath = strings.TrimSuffix(req.VoiceAudioPath, filepath.Ext(req.VoiceAudioPath)) + ".json"
	}

	f, err := os.Open(marksPath)
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("open speech marks: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	words, _, err := timing.ParseSpeechMarks(f)
	f.Close()
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("parse speech marks %s: %w", marksPath, err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}
	if len(words) == 0 {
		context.AddError(c.GetName(), fmt.Errorf("speech marks %s contain no word events", marksPath))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	voiceDur, err := c.tools.ProbeDuration(ctx, req.VoiceAudioPath)
	if err != nil {
		context.AddError(c.GetName(), fmt.Errorf("probe narration audio: %w", err))
		c.GetErrorCounter().Add(ctx, 1)
		return
	}

	metaDur := words[len(words)-1].End
	delta := metaDur - voiceDur
	switch {
	case delta > 0.50:
		context.AddError(c.GetName(), fmt.Errorf(
			"speech marks outrun the audio by %.2fs (marks %.2fs, audio %.2fs); wrong marks file?", delta, metaDur, voiceDur))
		c.GetErrorCounter().Add(ctx, 1)
		return
	case math.Abs(delta) > 5.0:
		context.AddError(c.GetName(), fmt.Errorf(
			"speech marks and audio disagree by %.2fs (marks %.2fs, audio %.2fs); files are from different takes", delta, metaDur, voiceDur))
		c.GetErrorCounter().Add(ctx, 1)
		return
	case math.Abs(delta) > 0.80:
		reporter.Log(fmt.Sprintf("WARNING: speech marks drift %.2fs against the audio (marks %.2fs, audio %.2fs)", delta, metaDur, voiceDur))
	}

	reporter.Log(fmt.Sprintf("speech marks: %d words, audio %.2fs", len(words), voiceDur))
	c.GetSuccessCounter().Add(ctx, 1)
	context.Add(GetWordTokensParamName(), words)
	context.Add(GetVoiceDurParamName(), voiceDur)
	context.Add(cor.CtxOut, words)
}
