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

// Package main contains the setup and initialization logic for the
// application's state. This file creates the centralized state manager
// holding the configuration, the resolved media tooling, the AI
// backends, the two workflows, and the job manager.
//
// Functions:
//   - SetupOS: Points the configuration loader at the config directory
//     and runtime.
//   - GetConfig: A singleton that loads the configuration once.
//   - InitState: Resolves ffmpeg/ffprobe, builds the caption and
//     embedding providers from the configured backends, constructs the
//     index and render workflows, and wires them into the API handler.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"google.golang.org/genai"

	"github.com/muziris/go-gist-video/internal/api"
	"github.com/muziris/go-gist-video/internal/config"
	"github.com/muziris/go-gist-video/internal/core/workflow"
	"github.com/muziris/go-gist-video/internal/embed"
	"github.com/muziris/go-gist-video/internal/jobs"
	"github.com/muziris/go-gist-video/internal/media"
	"github.com/muziris/go-gist-video/internal/vision"
)

// StateManager holds all the shared dependencies for the application,
// acting as a centralized container for tooling, workflows, and the
// job manager. This avoids globals and keeps dependency wiring in one
// place.
type StateManager struct {
	config  *config.Config
	tools   *media.Tools
	manager *jobs.Manager
	handler *api.Handler
}

// state is the single instance of StateManager.
var state = &StateManager{}

// SetupOS sets the environment variables the configuration loader uses
// to find the TOML files, unless the operator already set them.
//
// Outputs:
//   - error: An error if setting any of the environment variables fails.
func SetupOS() (err error) {
	if os.Getenv(config.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(config.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(config.EnvConfigRuntime) == "" {
		err = os.Setenv(config.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig provides a singleton instance of the application
// configuration, loading it from the TOML files on first use.
//
// Outputs:
//   - *config.Config: The loaded application configuration.
func GetConfig() *config.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup config environment: %v\n", err)
		}
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("failed to load configuration: %v\n", err)
		}
		state.config = cfg
	}
	return state.config
}

// newCaptionProvider builds the configured caption backend. Anything
// other than "gemini" selects the offline null provider.
func newCaptionProvider(ctx context.Context, cfg *config.Config) vision.CaptionProvider {
	if cfg.Vision.Backend != "gemini" {
		slog.Info("caption backend: null (offline)")
		return &vision.NullCaptionProvider{}
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Application.GoogleProjectId,
		Location: cfg.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		log.Fatalf("failed to create genai client for captions: %v\n", err)
	}
	p := vision.NewGeminiCaptionProvider(gc.Models, cfg.Vision.Model, cfg.Vision.RateLimit)
	p.ProjectHint = cfg.Vision.ProjectHint
	if cfg.Vision.MaxRetries > 0 {
		p.MaxRetries = cfg.Vision.MaxRetries
	}
	slog.Info("caption backend: gemini", "model", cfg.Vision.Model)
	return p
}

// newEmbedProvider builds the configured embedding backend. Anything
// other than "genai" selects the deterministic local hashing embedder.
func newEmbedProvider(ctx context.Context, cfg *config.Config) embed.Provider {
	if cfg.Embedding.Backend != "genai" {
		slog.Info("embedding backend: localhash", "dim", cfg.Embedding.Dim)
		return embed.NewLocalHashProvider(cfg.Embedding.Dim)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Application.GoogleProjectId,
		Location: cfg.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		log.Fatalf("failed to create genai client for embeddings: %v\n", err)
	}
	slog.Info("embedding backend: genai", "model", cfg.Embedding.Model)
	q := embed.NewQuotaAwareEmbeddingModel(gc.Models, cfg.Embedding.Model, cfg.Embedding.RateLimit)
	if cfg.Embedding.MaxRetries > 0 {
		q.MaxRetries = cfg.Embedding.MaxRetries
	}
	return q
}

// InitState initializes the entire application state.
//
// Inputs:
//   - ctx: The root context.Context for the application.
//
// This function performs the following steps:
//  1. Loads the application configuration.
//  2. Resolves the ffmpeg and ffprobe binaries.
//  3. Builds the caption and embedding providers from the configured
//     backends.
//  4. Constructs the index and render workflows and the job manager,
//     and wires them into the API handler.
func InitState(ctx context.Context) {
	cfg := GetConfig()

	tools, err := media.FindTools(cfg.Media.FFmpegPath, cfg.Media.FFprobePath)
	if err != nil {
		log.Fatalf("failed to resolve media tooling: %v\n", err)
	}
	state.tools = tools

	captionProvider := newCaptionProvider(ctx, cfg)
	embedProvider := newEmbedProvider(ctx, cfg)

	state.manager = jobs.NewManager()
	state.handler = &api.Handler{
		Config:   cfg,
		Manager:  state.manager,
		IndexWf:  workflow.NewIndexWorkflow(cfg, tools, captionProvider, embedProvider),
		RenderWf: workflow.NewRenderWorkflow(cfg, tools, embedProvider),
	}
}
