package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/signaling"
)

// healthResponse mirrors the liveness shape the meeting webapp polls.
type healthResponse struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	ActiveRooms int       `json:"activeRooms"`
	Timestamp   time.Time `json:"timestamp"`
}

type roomStatusResponse struct {
	Participants []signaling.ParticipantSnapshot `json:"participants"`
}

// Health reports process status and the active-room count.
func Health(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, healthResponse{
			Status:      "OK",
			Message:     "Meet signaling relay",
			ActiveRooms: hub.ActiveRooms(),
			Timestamp:   time.Now(),
		})
	}
}

// RoomStatus returns the roster for one room. Unknown rooms yield an
// empty roster, not an error.
func RoomStatus(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("roomID")
		writeJSON(w, roomStatusResponse{Participants: hub.RoomInfo(roomID)})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
