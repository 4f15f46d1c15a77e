// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command insights starts the AleutianInsights HTTP server.
//
// This is the main entry point for the containerized insights service.
// It reads configuration from an optional YAML file and environment
// variables (env wins) and starts the server.
//
// # Environment Variables
//
//   - INSIGHTS_PORT: HTTP server port (default: 12310)
//   - INSIGHTS_DATABASE_DSN: Postgres DSN for the read-only experiment store (required)
//   - INSIGHTS_SHARED_SECRET: shared token for the X-Internal-Token header (optional)
//   - INSIGHTS_CONFIG_FILE: path to an optional YAML config file
//   - INSIGHTS_LOG_DIR: directory for JSON log files (optional)
//   - LLM_BACKEND_TYPE: LLM provider - openai, ollama, claude (default: openai)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o insights ./cmd/insights
//
//	# Run
//	INSIGHTS_DATABASE_DSN=postgres://... ./insights
//
//	# Or via container
//	podman-compose up insights
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianInsights/pkg/logging"
	"github.com/AleutianAI/AleutianInsights/services/insights"
)

// fileConfig mirrors the subset of insights.Config that may be set
// from a YAML file. Environment variables take precedence.
type fileConfig struct {
	Port         int    `yaml:"port"`
	LLMBackend   string `yaml:"llm_backend"`
	DatabaseDSN  string `yaml:"database_dsn"`
	OTelEndpoint string `yaml:"otel_endpoint"`
	SharedSecret string `yaml:"shared_secret"`
	GinMode      string `yaml:"gin_mode"`
}

func main() {
	// Setup structured logging (stderr JSON, optional file)
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("INSIGHTS_LOG_DIR"),
		Service: "insights",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	// Optional YAML config file, overridden by environment variables
	fc := loadFileConfig(os.Getenv("INSIGHTS_CONFIG_FILE"))

	cfg := insights.Config{
		Port:         getEnvInt("INSIGHTS_PORT", orInt(fc.Port, 12310)),
		LLMBackend:   getEnvString("LLM_BACKEND_TYPE", orString(fc.LLMBackend, "openai")),
		DatabaseDSN:  getEnvString("INSIGHTS_DATABASE_DSN", fc.DatabaseDSN),
		OTelEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", orString(fc.OTelEndpoint, "aleutian-otel-collector:4317")),
		SharedSecret: getEnvString("INSIGHTS_SHARED_SECRET", fc.SharedSecret),
		GinMode:      getEnvString("GIN_MODE", fc.GinMode),
	}

	if cfg.DatabaseDSN == "" {
		log.Fatal("INSIGHTS_DATABASE_DSN is required")
	}

	slog.Info("Starting insights",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
	)

	svc, err := insights.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to create insights service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Insights error: %v", err)
	}
}

// loadFileConfig parses the YAML config file at path. A missing or
// empty path returns a zero fileConfig; a malformed file is fatal.
func loadFileConfig(path string) fileConfig {
	var fc fileConfig
	if path == "" {
		return fc
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read config file %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		log.Fatalf("Failed to parse config file %s: %v", path, err)
	}

	slog.Info("Loaded config file", "path", path)
	return fc
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
