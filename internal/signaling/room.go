package signaling

import (
	"time"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
)

// Participant is one room member, bound to the channel it joined on.
type Participant struct {
	ID       string
	Name     string
	JoinedAt time.Time

	client *Client
}

// Room groups the participants that can see and signal each other.
// A room only exists while it has at least one participant.
type Room struct {
	ID           string
	Participants map[string]*Participant
	CreatedAt    time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:           id,
		Participants: make(map[string]*Participant),
		CreatedAt:    now,
	}
}

// roster returns (id, name) pairs for every participant except excludeID.
// Pass "" to include everyone.
func (r *Room) roster(excludeID string) []protocol.ParticipantInfo {
	infos := make([]protocol.ParticipantInfo, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.ID == excludeID {
			continue
		}
		infos = append(infos, protocol.ParticipantInfo{ID: p.ID, Name: p.Name})
	}
	return infos
}
