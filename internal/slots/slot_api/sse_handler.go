package slot_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-reviews/internal/common"
)

// StreamSlots streams slot changes of one campaign as Server-Sent Events.
func (h *Handler) StreamSlots(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok || h.Events == nil {
		h.writeError(w, r, "StreamSlots", fmt.Errorf("%w: streaming unsupported", common.ErrTransient))
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	events := h.Events.Subscribe(ctx, campaignID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"campaign_id\":%d}\n\n", campaignID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("client connected to slot events of campaign %d", campaignID))

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("failed to serialize slot event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("client disconnected from campaign %d", campaignID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
