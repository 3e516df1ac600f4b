package model

import "time"

// Thought is one recorded transcript. ID, CreatedAt and OwnerID are assigned
// by the server.
type Thought struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	OwnerID   string    `json:"owner_id"`
}

// CreateThoughtRequest is the accepted request body. Any owner field a client
// sends is not part of it and is dropped while decoding.
type CreateThoughtRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
