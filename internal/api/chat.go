package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/nero-labs/internal/chat"
	"github.com/ashureev/nero-labs/internal/controller"
	"github.com/ashureev/nero-labs/internal/ledger"
)

const maxChatHistory = 50

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

type chatResponse struct {
	Reply    string                    `json:"reply"`
	Activity controller.ActivityResult `json:"activity"`
}

// Chat charges one query and, when it is covered, returns Nero's reply.
// An unaffordable query returns 402 with the pending payment and no reply.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		Error(w, http.StatusBadRequest, "messages are required")
		return
	}
	if len(req.Messages) > maxChatHistory {
		req.Messages = req.Messages[len(req.Messages)-maxChatHistory:]
	}

	d, ok := h.device(w, r)
	if !ok {
		return
	}
	if !h.chat.Allow(d.ID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	activity := d.Controller.ProcessActivity(r.Context(), ledger.ActivityQuery, false)
	if !activity.OK() {
		JSON(w, statusForResult(activity.Result), chatResponse{Activity: activity})
		return
	}

	snap := d.Controller.Snapshot()
	level := snap.State.Level
	if a, ok := snap.State.Agent(snap.ActivePlatform); ok {
		level = a.Level
	}
	cfg, _ := h.platforms.Get(snap.ActivePlatform)

	slog.Info("Chat request",
		"device_id", d.ID,
		"wallet", snap.State.WalletAddress,
		"platform_id", snap.ActivePlatform,
		"message_count", len(req.Messages),
	)
	reply := h.chat.Chat(r.Context(), chat.Request{
		History:  req.Messages,
		Level:    level,
		Platform: cfg,
	})
	JSON(w, http.StatusOK, chatResponse{Reply: reply, Activity: activity})
}
