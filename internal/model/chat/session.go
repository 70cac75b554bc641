package chat

import "time"

// Session captures one anonymous conversation. It owns exactly one transcript.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
