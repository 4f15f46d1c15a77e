// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianInsights/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsights/services/insights/engine"
	"github.com/AleutianAI/AleutianInsights/services/insights/middleware"
	"github.com/AleutianAI/AleutianInsights/services/insights/query"
	"github.com/AleutianAI/AleutianInsights/services/insights/store"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockStore is a minimal store.Store for route registration tests.
type mockStore struct{}

func (m *mockStore) RunQuery(_ context.Context, _ string) ([]map[string]any, error) {
	return nil, nil
}

func (m *mockStore) AggregatePatterns(_ context.Context, _ store.PatternFilter) ([]datatypes.PatternEdge, error) {
	return nil, nil
}

func (m *mockStore) SimilarExperiments(_ context.Context, _ datatypes.Experiment, _ int) ([]datatypes.Experiment, error) {
	return nil, nil
}

func (m *mockStore) GetExperiment(_ context.Context, id int64) (*datatypes.Experiment, error) {
	return &datatypes.Experiment{ID: id}, nil
}

// mockCollab is a minimal engine.Collaborator.
type mockCollab struct{}

func (m *mockCollab) Propose(_ context.Context, _ string) (string, error) {
	return `{"query": "SELECT 1"}`, nil
}

func (m *mockCollab) Summarize(_ context.Context, _ string) (string, error) {
	return "summary", nil
}

func setupTestRouter(secret string) *gin.Engine {
	router := gin.New()
	eng := engine.New(&mockStore{}, &mockCollab{}, query.DefaultLimits())
	SetupRoutes(router, eng, &mockStore{}, query.DefaultLimits(), secret)
	return router
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersAllRoutes(t *testing.T) {
	router := setupTestRouter("")

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/ask"},
		{"GET", "/v1/experiments/:id/similar"},
	}

	routes := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range routes {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", want.method, want.path)
		}
	}
}

func TestSetupRoutes_SecretProtectsV1Only(t *testing.T) {
	router := setupTestRouter("s3cret")

	// Health stays open.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}

	// v1 requires the token.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/experiments/1/similar", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /v1 status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/experiments/1/similar", nil)
	req.Header.Set(middleware.TokenHeader, "s3cret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated /v1 status = %d, want 200", w.Code)
	}
}
