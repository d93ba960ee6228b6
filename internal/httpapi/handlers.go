package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/draftroom/draftroom/internal/hub"
)

var startTime = time.Now()

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Status reports directory counts for monitoring.
func Status(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan hub.View, 1)
		select {
		case h.Inbox() <- hub.GetView{Reply: reply}:
		case <-time.After(2 * time.Second):
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}

		select {
		case view := <-reply:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(struct {
				UptimeSecs int `json:"uptime_secs"`
				Rooms      int `json:"rooms"`
				Users      int `json:"users"`
			}{
				UptimeSecs: int(time.Since(startTime).Seconds()),
				Rooms:      len(view.RoomIDs),
				Users:      len(view.Users),
			})
		case <-time.After(2 * time.Second):
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		}
	}
}
