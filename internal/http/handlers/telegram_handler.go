// Package handlers provides the HTTP handler implementations for the webhook
// endpoints.
//
// This file implements the Telegram update webhook. The route embeds a shared
// secret (/webhook/telegram/:secret) because Telegram cannot sign requests;
// a wrong secret gets a 404 so the endpoint is indistinguishable from a
// missing route to scanners.
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/changcafe/go-order-bridge/internal/bot"
	"github.com/changcafe/go-order-bridge/internal/http/middleware"
	"github.com/changcafe/go-order-bridge/internal/telegram"
)

// TelegramHandler exposes the Telegram update webhook.
type TelegramHandler struct {
	// Bot dispatches updates to the conversation layer.
	Bot *bot.Bot
	// Secret is the path segment Telegram was registered with.
	Secret string
}

// NewTelegramHandler constructs a TelegramHandler.
func NewTelegramHandler(b *bot.Bot, secret string) *TelegramHandler {
	return &TelegramHandler{Bot: b, Secret: secret}
}

// Updates handles POST /webhook/telegram/:secret.
//
// It always answers 200 to valid requests: Telegram redelivers on any other
// status, and redelivering a stale button press only repeats the rejection.
func (h *TelegramHandler) Updates(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(h.Secret)) != 1 {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "not found")
		return
	}

	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("malformed telegram update")
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed update")
		return
	}

	h.Bot.HandleUpdate(c.Request.Context(), upd)
	c.Status(http.StatusOK)
}
