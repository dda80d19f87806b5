// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inspect

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RegisterRoutes registers all inspect routes with the router.
//
// Description:
//
//	Registers all /v1/inspect/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//	The rate limiter, when non-nil, guards only the query endpoint; the
//	management and health endpoints stay reachable under load.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//	limiter - Optional query rate limiter. Can be nil.
//
// Endpoints:
//
//	POST /v1/inspect/query - Answer a natural-language query
//	GET  /v1/inspect/rules - List active and rejected rules
//	POST /v1/inspect/rules/reload - Reload rules from the source
//	POST /v1/inspect/rules/validate - Validate a candidate rule
//	GET  /v1/inspect/health - Health check
//	GET  /v1/inspect/ready - Readiness check
//
// Example:
//
//	service := inspect.NewService(store, extractor, executor, cache, logger)
//	handlers := inspect.NewHandlers(service, cfg.MinTriggerRuneLen, logger)
//
//	v1 := router.Group("/v1")
//	inspect.RegisterRoutes(v1, handlers, rate.NewLimiter(rate.Limit(50), 100))
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, limiter *rate.Limiter) {
	group := rg.Group("/inspect")
	{
		if limiter != nil {
			group.POST("/query", RateLimitMiddleware(limiter), handlers.HandleQuery)
		} else {
			group.POST("/query", handlers.HandleQuery)
		}

		// Rule management
		group.GET("/rules", handlers.HandleListRules)
		group.POST("/rules/reload", handlers.HandleReload)
		group.POST("/rules/validate", handlers.HandleValidateRule)

		// Health checks
		group.GET("/health", handlers.HandleHealth)
		group.GET("/ready", handlers.HandleReady)
	}
}
