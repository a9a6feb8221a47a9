package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// StreamEvents handles GET /api/v1/events/stream.
// It replays the journal of one node (?node=id) or of every node, then
// follows it as server-sent events until the client goes away.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	var nodes []packet.NodeID
	if s := r.URL.Query().Get("node"); s != "" {
		id, err := parseNodeID(s)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Reject unknown nodes before switching to a stream
		if _, err := h.sim.NodeEvents(r.Context(), id, 0, 0); err != nil {
			h.writeSimError(w, err)
			return
		}
		nodes = []packet.NodeID{id}
	} else {
		for _, n := range h.sim.Nodes() {
			nodes = append(nodes, n.ID)
		}
	}

	offset, _, err := h.parsePage(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	offsets := make(map[packet.NodeID]int64, len(nodes))
	for _, id := range nodes {
		offsets[id] = offset
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if len(nodes) == 1 {
		fmt.Fprintf(w, ": streaming events of node %d\n\n", nodes[0])
	} else {
		fmt.Fprint(w, ": streaming events of all nodes\n\n")
	}
	flush(w)

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		for _, id := range nodes {
			entries, err := h.sim.NodeEvents(ctx, id, offsets[id], maxEventLimit)
			if err != nil {
				// Journal closed or request gone
				return
			}
			for _, e := range entries {
				msg, err := toEventMessage(e)
				if err != nil {
					continue
				}
				if err := writeSSE(w, fmt.Sprintf("%d-%d", id, e.Offset), msg.Kind, msg); err != nil {
					return
				}
				offsets[id] = e.Offset + 1
			}
		}
		flush(w)

		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flush(w)
		case <-poll.C:
		}
	}
}

// writeSSE writes one server-sent event with a JSON data line
func writeSSE(w http.ResponseWriter, id, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE message: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", id, event, payload)
	return err
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
