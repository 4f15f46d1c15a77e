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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianInsights/services/insights/query"
	"github.com/AleutianAI/AleutianInsights/services/insights/store"
)

// HandleSimilar answers GET /v1/experiments/:id/similar.
//
// Exposes the similarity scorer directly: the focal record's non-empty
// attributes are compared against every other record, one point per match.
func HandleSimilar(s store.Store, limits query.Limits) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "HandleSimilar")
		defer span.End()

		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid experiment id"})
			return
		}
		span.SetAttributes(attribute.Int64("experiment_id", id))

		max := limits.MaxSimilar
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= limits.MaxSimilar {
				max = n
			}
		}

		focal, err := s.GetExperiment(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Focal experiment lookup failed", "id", id, "error", err)
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		neighbors, err := s.SimilarExperiments(ctx, *focal, max)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Similarity query failed", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"focal":     focal,
			"neighbors": neighbors,
			"count":     len(neighbors),
		})
	}
}

// HealthCheck answers GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
