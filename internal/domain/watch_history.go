package domain

import "time"

// WatchPosition is a saved playback position for one user and item.
type WatchPosition struct {
	UserID     string    `json:"userId"`
	ItemID     ItemID    `json:"itemId"`
	Position   float64   `json:"position"` // seconds
	Duration   float64   `json:"duration"` // seconds
	ItemName   string    `json:"itemName"`
	SeriesName string    `json:"seriesName,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
