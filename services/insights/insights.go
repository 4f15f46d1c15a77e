// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package insights provides the experiment-insights service for AleutianInsights.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the LLM query proposer, the sanitization
// pipeline, the read-only experiment store, and observability
// infrastructure.
//
// # Usage
//
//	cfg := insights.Config{Port: 12310, DatabaseDSN: dsn}
//	svc, err := insights.New(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianInsights/services/insights/engine"
	"github.com/AleutianAI/AleutianInsights/services/insights/observability"
	"github.com/AleutianAI/AleutianInsights/services/insights/query"
	"github.com/AleutianAI/AleutianInsights/services/insights/routes"
	"github.com/AleutianAI/AleutianInsights/services/insights/store"
	"github.com/AleutianAI/AleutianInsights/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the insights service.
//
// # Description
//
// Service abstracts the service lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
//
// # Limitations
//
//   - No graceful shutdown method yet (planned for future)
//   - Run() blocks until server error
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	//
	// # Outputs
	//
	//   - error: Non-nil if server fails to start or encounters fatal error
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Outputs
	//
	//   - *gin.Engine: The configured router with all routes registered
	//
	// # Assumptions
	//
	//   - Caller will not modify the router
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds insights service configuration options.
//
// # Description
//
// Config centralizes all configuration for the insights service.
// Values can be populated from environment variables, config files,
// or programmatically for testing.
//
// # Required Fields
//
//   - DatabaseDSN: Postgres connection string for the experiment store.
//
// # Optional Fields
//
// All other fields have defaults applied by New().
//
// # Examples
//
//	// Minimal config
//	cfg := Config{DatabaseDSN: "postgres://insights:...@db/experiments"}
//
//	// Custom port and LLM backend
//	cfg := Config{
//	    Port:        8080,
//	    LLMBackend:  "claude",
//	    DatabaseDSN: dsn,
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// LLMBackend specifies the query-proposer provider.
	// Valid values: "openai", "ollama", "claude", "anthropic"
	// Default: "openai"
	LLMBackend string

	// DatabaseDSN is the Postgres connection string for the
	// read-only experiment store. Required.
	DatabaseDSN string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// SharedSecret, when non-empty, is required in the
	// X-Internal-Token header on every /v1 request.
	SharedSecret string

	// Limits bounds query results and pattern windows.
	// Zero value uses query.DefaultLimits().
	Limits query.Limits
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service coordinates:
//   - HTTP routing via Gin
//   - LLM client management for the query proposer
//   - The read-only Postgres experiment store
//   - OpenTelemetry tracing
//   - Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	llmClient     llm.LLMClient
	store         store.Store
	engine        *engine.Engine
	storeCleanup  func()
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new insights Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Connects the read-only experiment store
//  5. Creates the LLM client based on backend type
//  6. Builds the question engine and HTTP routes
//
// # Inputs
//
//   - ctx: Context for store connection establishment
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run insights service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - LLM client creation may fail if provider credentials are missing
//
// # Assumptions
//
//   - The database referenced by DatabaseDSN grants only SELECT
//     to the connecting role
func New(ctx context.Context, cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for ask pipeline")
	}

	// Connect the experiment store
	if err := s.initStore(ctx); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize experiment store: %w", err)
	}

	// Initialize LLM client
	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	// Build the question engine
	s.engine = engine.New(s.store, &engine.LLMCollaborator{Client: s.llmClient}, s.config.Limits)

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting insights server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	cfg.EnableMetrics = true

	if cfg.Limits == (query.Limits{}) {
		cfg.Limits = query.DefaultLimits()
	}

	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up OTLP trace exporter to send spans to the configured collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("insights-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore connects the read-only Postgres experiment store.
//
// # Outputs
//
//   - error: Non-nil if the connection pool cannot be established
func (s *service) initStore(ctx context.Context) error {
	st, closeFn, err := store.New(ctx, s.config.DatabaseDSN)
	if err != nil {
		return err
	}

	s.store = st
	s.storeCleanup = closeFn
	slog.Info("Experiment store connected")

	return nil
}

// initLLMClient initializes the query-proposer LLM client.
//
// # Limitations
//
//   - Only supports: openai, ollama, claude/anthropic
//
// # Assumptions
//
//   - Required environment variables are set for the chosen provider
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	case "claude", "anthropic":
		s.llmClient, err = llm.NewAnthropicClient()
		slog.Info("Using Anthropic (Claude) LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to openai", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOpenAIClient()
	}

	return err
}

// initRouter sets up the Gin HTTP router with all routes.
//
// # Assumptions
//
//   - All dependencies (LLM, store, engine) are initialized
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("insights-service"))

	routes.SetupRoutes(s.router, s.engine, s.store, s.config.Limits, s.config.SharedSecret)
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run() exits or on initialization failure.
// Closes the store pool and shuts down the tracer.
func (s *service) cleanup() {
	if s.storeCleanup != nil {
		s.storeCleanup()
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
