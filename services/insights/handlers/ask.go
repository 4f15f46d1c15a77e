// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianInsights/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsights/services/insights/engine"
	"github.com/AleutianAI/AleutianInsights/services/insights/observability"
	"github.com/AleutianAI/AleutianInsights/services/insights/query"
)

var askTracer = otel.Tracer("aleutian.insights.handlers")

// HandleAsk answers POST /v1/ask.
func HandleAsk(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()

		var request datatypes.AskRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind ask request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		requestID := uuid.New().String()
		span.SetAttributes(
			attribute.String("request_id", requestID),
			attribute.String("mode_requested", request.Mode),
			attribute.Bool("summarize", request.Summarize),
		)
		slog.Info("Received ask request",
			"request_id", requestID,
			"mode", request.Mode,
			"similar_to", request.SimilarTo,
		)

		start := time.Now()
		resp, err := eng.Ask(ctx, request)
		resp.RequestID = requestID

		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.String("mode_used", resp.ModeUsed),
			attribute.Bool("fallback_used", resp.FallbackUsed),
			attribute.Int("row_count", resp.RowCount),
		)
		recordAskMetrics(resp, status, time.Since(start), err)

		slog.Info("Ask request complete",
			"request_id", requestID,
			"mode_used", resp.ModeUsed,
			"fallback_used", resp.FallbackUsed,
			"row_count", resp.RowCount,
			"pattern_row_count", resp.PatternRowCount,
			"status", status,
		)

		c.JSON(askStatusCode(err), resp)
	}
}

// askStatusCode maps the error taxonomy onto HTTP statuses. Partial results
// ride along in the body either way so operators can debug the prompt.
func askStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ve *query.ValidationError
	var pe *query.ProposalParseError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func recordAskMetrics(resp *datatypes.AskResponse, status string, elapsed time.Duration, err error) {
	m := observability.Metrics()
	if m == nil {
		return
	}
	m.AsksTotal.WithLabelValues(resp.ModeUsed, status).Inc()
	m.AskDurationSeconds.WithLabelValues(resp.ModeUsed, status).Observe(elapsed.Seconds())
	if resp.FallbackUsed {
		m.FallbacksTotal.WithLabelValues("pattern", "tabular").Inc()
	}
	if query.IsValidationError(err) {
		m.GuardRejectionsTotal.WithLabelValues("sql").Inc()
	}
}
