// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianInsights/services/insights/engine"
	"github.com/AleutianAI/AleutianInsights/services/insights/handlers"
	"github.com/AleutianAI/AleutianInsights/services/insights/middleware"
	"github.com/AleutianAI/AleutianInsights/services/insights/query"
	"github.com/AleutianAI/AleutianInsights/services/insights/store"
)

// SetupRoutes registers every insights endpoint.
//
//	GET  /health                       - liveness
//	GET  /metrics                      - Prometheus metrics
//	POST /v1/ask                       - question → sanitized query + results
//	GET  /v1/experiments/:id/similar   - similarity neighbors
func SetupRoutes(router *gin.Engine, eng *engine.Engine, s store.Store,
	limits query.Limits, sharedSecret string) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.SharedSecret(sharedSecret))
	{
		v1.POST("/ask", handlers.HandleAsk(eng))
		v1.GET("/experiments/:id/similar", handlers.HandleSimilar(s, limits))
	}
}
