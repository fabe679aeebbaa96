package request

import (
	"sort"
	"time"

	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
)

// SortQueue orders requests by priority tier, then arrival. It sorts a copy.
func SortQueue(reqs []*Request) []*Request {
	out := make([]*Request, len(reqs))
	copy(out, reqs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityOrder != out[j].PriorityOrder {
			return out[i].PriorityOrder < out[j].PriorityOrder
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type QueueEntry struct {
	Position      int       `json:"position"`
	RequestID     string    `json:"request_id"`
	Kind          string    `json:"kind"`
	Tier          string    `json:"tier"`
	SongTitle     string    `json:"song_title,omitempty"`
	SongArtist    string    `json:"song_artist,omitempty"`
	SongURL       string    `json:"song_url,omitempty"`
	Message       string    `json:"message,omitempty"`
	RecipientName string    `json:"recipient_name,omitempty"`
	RequesterName string    `json:"requester_name,omitempty"`
	AmountPaid    int64     `json:"amount_paid"`
	AmountDisplay string    `json:"amount_display"`
	CreatedAt     time.Time `json:"created_at"`
}

func TierName(priorityOrder int) string {
	switch priorityOrder {
	case dm.PriorityNext:
		return "next"
	case dm.PriorityFastTrack:
		return "fast_track"
	default:
		return "standard"
	}
}
