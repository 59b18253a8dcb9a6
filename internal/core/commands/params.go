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

// Package commands provides the concrete implementations of the Chain
// of Responsibility (COR) pattern's Command interface. This file
// centralizes the context parameter names shared between commands and
// the progress-reporting hook workflows use to surface job state.
package commands

import (
	"github.com/muziris/go-gist-video/internal/core/cor"
)

const (
	indexRequestParamName  = "__index_request__"
	renderRequestParamName = "__render_request__"
	videoAssetsParamName   = "__video_assets__"
	clipsParamName         = "__clips__"
	clipVectorsParamName   = "__clip_vectors__"
	embeddingMetaParam     = "__embedding_meta__"
	wordTokensParamName    = "__word_tokens__"
	voiceDurParamName      = "__voice_dur__"
	unitsParamName         = "__narration_units__"
	unitTimingsParamName   = "__unit_timings__"
	scheduleUnitsParam     = "__schedule_units__"
	segmentsParamName      = "__segments__"
	reporterParamName      = "__reporter__"
)

// GetIndexRequestParamName returns the context key under which the
// workflow keeps the original index request for commands that need
// request-scoped paths.
func GetIndexRequestParamName() string { return indexRequestParamName }

// GetRenderRequestParamName returns the context key under which the
// render workflow keeps the original render request.
func GetRenderRequestParamName() string { return renderRequestParamName }

// GetVideoAssetsParamName returns the context key for the prepared
// video assets produced by the video prepare command.
func GetVideoAssetsParamName() string { return videoAssetsParamName }

// GetClipsParamName returns the context key for the clip table built
// by the slicing and captioning commands.
func GetClipsParamName() string { return clipsParamName }

// GetClipVectorsParamName returns the context key for the clip
// embedding matrix.
func GetClipVectorsParamName() string { return clipVectorsParamName }

// GetEmbeddingMetaParamName returns the context key for the embedding
// provenance record.
func GetEmbeddingMetaParamName() string { return embeddingMetaParam }

// GetWordTokensParamName returns the context key for parsed speech-mark
// word tokens.
func GetWordTokensParamName() string { return wordTokensParamName }

// GetVoiceDurParamName returns the context key for the probed narration
// audio duration.
func GetVoiceDurParamName() string { return voiceDurParamName }

// GetUnitsParamName returns the context key for parsed narration units.
func GetUnitsParamName() string { return unitsParamName }

// GetUnitTimingsParamName returns the context key for frame-snapped
// unit timings.
func GetUnitTimingsParamName() string { return unitTimingsParamName }

// GetScheduleUnitsParamName returns the context key for the scheduler
// input units (query text plus timing).
func GetScheduleUnitsParamName() string { return scheduleUnitsParam }

// GetSegmentsParamName returns the context key for scheduled timeline
// segments.
func GetSegmentsParamName() string { return segmentsParamName }

// GetReporterParamName returns the context key under which workflows
// store their progress reporter.
func GetReporterParamName() string { return reporterParamName }

// Reporter receives progress and log lines from commands. The jobs
// package's Job satisfies it; tests use the no-op.
type Reporter interface {
	Progress(pct int, stage string)
	Log(msg string)
}

// nopReporter is used when no reporter was attached to the context.
type nopReporter struct{}

func (nopReporter) Progress(int, string) {}
func (nopReporter) Log(string)           {}

// reporterFrom extracts the workflow's reporter from the context,
// falling back to a no-op so commands never nil-check.
func reporterFrom(context cor.Context) Reporter {
	if r, ok := context.Get(reporterParamName).(Reporter); ok && r != nil {
		return r
	}
	return nopReporter{}
}
