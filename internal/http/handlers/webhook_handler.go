// Package handlers provides the HTTP handler implementations for the webhook
// endpoints.
//
// This file implements the order webhook. The sending site posts either
// form-encoded fields or JSON depending on how the form is configured, so the
// handler normalizes both into the flat key/value map the intake service
// expects (nested JSON becomes PHP-style bracket keys, e.g.
// payment[products][0][name]).
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/changcafe/go-order-bridge/internal/http/middleware"
	"github.com/changcafe/go-order-bridge/internal/services"
)

// maxFormMemory bounds in-memory buffering of multipart forms.
const maxFormMemory = 4 << 20 // 4 MiB

// WebhookHandler exposes the order intake endpoint.
type WebhookHandler struct {
	// Ingest turns payloads into persisted orders.
	Ingest *services.IngestService
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(ingest *services.IngestService) *WebhookHandler {
	return &WebhookHandler{Ingest: ingest}
}

// webhookResponse is the success body returned to the sending site.
type webhookResponse struct {
	Status    string `json:"status"`
	OrderID   uint   `json:"order_id,omitempty"`
	DeepLink  string `json:"deep_link,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Tilda handles POST /webhook/tilda.
//
// Responses:
//   - 200 {"status":"ok", "order_id":..., "deep_link":...} on success
//   - 200 {"status":"ok"} for the configuration probe (test=test)
//   - 400 missing_order_id when no order identifier is present
//   - 500 ingest_failed on storage errors
func (h *WebhookHandler) Tilda(c *gin.Context) {
	fields, err := flattenRequest(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed payload")
		return
	}

	// Tilda sends test=test when the webhook is being configured.
	if fields["test"] == "test" {
		ok(c, http.StatusOK, webhookResponse{Status: "ok"})
		return
	}

	res, err := h.Ingest.Ingest(c.Request.Context(), fields)
	if err != nil {
		if errors.Is(err, services.ErrMissingOrderID) {
			fail(c, http.StatusBadRequest, ErrCodeMissingOrderID, "order id is missing")
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("order intake failed")
		fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, "could not store order")
		return
	}

	ok(c, http.StatusOK, webhookResponse{
		Status:    "ok",
		OrderID:   res.Order.ID,
		DeepLink:  res.DeepLink,
		Duplicate: res.Duplicate,
	})
}

// flattenRequest normalizes the payload into flat string fields regardless of
// encoding. Form fields keep their first value; JSON is flattened into
// bracket-keyed entries.
func flattenRequest(c *gin.Context) (map[string]string, error) {
	ct := c.ContentType()
	if strings.Contains(ct, "json") {
		var payload any
		if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
			return nil, err
		}
		fields := make(map[string]string)
		flattenJSON("", payload, fields)
		return fields, nil
	}

	if strings.Contains(ct, "multipart/form-data") {
		if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, err
		}
	} else if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(c.Request.PostForm))
	for k, vv := range c.Request.PostForm {
		if len(vv) > 0 {
			fields[k] = vv[0]
		}
	}
	return fields, nil
}

// flattenJSON walks a decoded JSON value and writes leaves under PHP-style
// bracket keys: {"payment":{"products":[{"name":"x"}]}} becomes
// payment[products][0][name]=x.
func flattenJSON(prefix string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "[" + k + "]"
			}
			flattenJSON(key, child, out)
		}
	case []any:
		for i, child := range val {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	case string:
		out[prefix] = val
	case float64:
		out[prefix] = strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		out[prefix] = strconv.FormatBool(val)
	case nil:
		// skip
	}
}
