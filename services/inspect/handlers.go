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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/qualisight/qualisight/services/inspect/rules"
)

// requestIDHeader carries the caller-supplied request ID, generated when
// absent.
const requestIDHeader = "X-Request-ID"

// Handlers holds the HTTP handlers for the inspect service.
type Handlers struct {
	service           *Service
	minTriggerRuneLen int
	logger            *slog.Logger
}

// NewHandlers creates the handler set.
//
// # Inputs
//
//   - service: The query service. Must not be nil.
//   - minTriggerRuneLen: Trigger length floor used for ad-hoc rule
//     validation, matching the store's load-time setting.
//   - logger: Logger. May be nil.
func NewHandlers(service *Service, minTriggerRuneLen int, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:           service,
		minTriggerRuneLen: minTriggerRuneLen,
		logger:            logger,
	}
}

// HandleQuery handles POST /v1/inspect/query.
//
// Description:
//
//	Runs the full answering pipeline for a natural-language question.
//	NoMatch and execution failures still return 200 with a well-formed
//	envelope; only malformed requests are rejected.
//
// Response:
//
//	200 OK: engine.Envelope
//	400 Bad Request: Missing or blank query
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleQuery")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query is required",
			Code:  "MISSING_QUERY",
		})
		return
	}

	env := h.service.Answer(c.Request.Context(), req.Query)
	env.Metadata.RequestID = requestID

	logger.Info("query handled",
		slog.Bool("success", env.Success),
		slog.Int("records", env.Metadata.RecordCount),
	)
	c.JSON(http.StatusOK, env)
}

// HandleReload handles POST /v1/inspect/rules/reload.
//
// Description:
//
//	Triggers an explicit rule reload from the configured source. On load
//	failure the previous snapshot stays live and the error is reported.
//
// Response:
//
//	200 OK: ReloadResponse
//	502 Bad Gateway: Source unreadable; previous rules still serving
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleReload(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleReload")

	snap, err := h.service.Reload(c.Request.Context())
	if err != nil {
		logger.Error("rule reload failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "rule reload failed; previous rules still active",
			Code:  "RELOAD_FAILED",
		})
		return
	}

	logger.Info("rules reloaded",
		slog.String("version", snap.Version),
		slog.Int("active", len(snap.Active)),
		slog.Int("rejected", len(snap.Rejected)),
	)
	c.JSON(http.StatusOK, ReloadResponse{
		SnapshotVersion: snap.Version,
		ActiveRules:     len(snap.Active),
		RejectedRules:   len(snap.Rejected),
	})
}

// HandleListRules handles GET /v1/inspect/rules.
//
// Description:
//
//	Returns the live snapshot's active rules plus the rules rejected at
//	load time with their reasons, so operators can see why a rule is not
//	matching.
//
// Response:
//
//	200 OK: ListRulesResponse
//	503 Service Unavailable: No snapshot loaded yet
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListRules(c *gin.Context) {
	snap := h.service.RuleSnapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "rules not loaded yet",
			Code:  "NOT_READY",
		})
		return
	}

	resp := ListRulesResponse{
		SnapshotVersion: snap.Version,
		LoadedAt:        snap.LoadedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Active:          make([]RuleView, 0, len(snap.Active)),
		Rejected:        make([]RuleView, 0, len(snap.Rejected)),
	}
	for i := range snap.Active {
		resp.Active = append(resp.Active, ruleView(&snap.Active[i].Rule, ""))
	}
	for i := range snap.Rejected {
		resp.Rejected = append(resp.Rejected, ruleView(&snap.Rejected[i].Rule, snap.Rejected[i].Reason))
	}
	c.JSON(http.StatusOK, resp)
}

// HandleValidateRule handles POST /v1/inspect/rules/validate.
//
// Description:
//
//	Structurally validates a candidate rule without loading it. Intended
//	for rule authoring tools: the verdict matches exactly what the store
//	would decide at load time.
//
// Response:
//
//	200 OK: ValidateRuleResponse (ok may be false)
//	400 Bad Request: Body is not a rule
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleValidateRule(c *gin.Context) {
	var req ValidateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "request body must contain a rule",
			Code:  "MALFORMED_RULE",
		})
		return
	}

	result := rules.ValidateRule(&req.Rule, h.minTriggerRuneLen)
	c.JSON(http.StatusOK, ValidateRuleResponse{
		OK:     result.OK,
		Reason: result.Reason,
	})
}

// HandleHealth handles GET /v1/inspect/health. Liveness only.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/inspect/ready. Ready means a rule snapshot
// is loaded and serving.
func (h *Handlers) HandleReady(c *gin.Context) {
	snap := h.service.RuleSnapshot()
	if snap == nil || len(snap.Active) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "ready",
		"snapshot_version": snap.Version,
		"active_rules":     len(snap.Active),
	})
}

// RateLimitMiddleware bounds the query endpoint's request rate. Requests
// over the limit are shed with 429 rather than queued, keeping the
// dashboard responsive under burst load.
func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "too many requests",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// ruleView projects a rule into its management read-model.
func ruleView(r *rules.IntentRule, reason string) RuleView {
	return RuleView{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Category:     r.Category,
		TriggerWords: r.TriggerWords,
		Priority:     r.Priority,
		ActionType:   string(r.ActionType),
		ExampleQuery: r.ExampleQuery,
		Status:       string(r.Status),
		Reason:       reason,
	}
}

// getOrCreateRequestID returns the caller-supplied request ID or generates
// one, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	return id
}
