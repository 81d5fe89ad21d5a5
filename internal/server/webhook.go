package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/format"
	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/mailin"
	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/notify/discord"
)

// postWebhook handles one CloudMailin notification: decode, format, relay.
// Any delivery failure maps to 502 so CloudMailin redelivers the whole
// notification; no partial-success state is tracked.
func (s *Server) postWebhook(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()

	var payload mailin.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("rejecting malformed webhook body",
			"delivery_id", deliveryID,
			"error", err,
		)
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	messages := format.Format(&payload)

	slog.Info("relaying inbound email",
		"delivery_id", deliveryID,
		"message_id", payload.MessageID(),
		"from", payload.From(),
		"to", payload.To(),
		"parts", len(messages),
		"notifier", s.notifier.Name(),
	)

	if err := s.notifier.Notify(r.Context(), messages); err != nil {
		var statusErr *discord.StatusError
		if errors.As(err, &statusErr) {
			slog.Error("delivery failed",
				"delivery_id", deliveryID,
				"status", statusErr.StatusCode,
				"error", err,
			)
			http.Error(w, fmt.Sprintf("Discord error: %d", statusErr.StatusCode), http.StatusBadGateway)
			return
		}
		slog.Error("delivery failed",
			"delivery_id", deliveryID,
			"error", err,
		)
		http.Error(w, "Discord error: upstream unreachable", http.StatusBadGateway)
		return
	}

	slog.Info("delivered",
		"delivery_id", deliveryID,
		"parts", len(messages),
	)
	_, _ = w.Write([]byte("ok"))
}
