// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the insights service.
//
// Authorization is a precondition for the ask pipeline, not part of it:
// deployments behind an internal gateway typically run with no token
// configured, which disables the check entirely.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TokenHeader carries the internal shared secret.
const TokenHeader = "X-Internal-Token"

// SharedSecret validates the internal token header on every request.
//
// # Description
//
// When expected is empty the middleware is a no-op (open deployment).
// Otherwise the header must match exactly; comparison is constant-time.
//
// # Inputs
//
//   - expected: The configured shared secret. May be empty.
//
// # Outputs
//
//   - gin.HandlerFunc: Aborts with 401 on mismatch.
func SharedSecret(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		got := c.GetHeader(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
