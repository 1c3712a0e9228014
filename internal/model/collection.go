package model

import "time"

// MediaKind is the type of a collection item
type MediaKind string

const (
	MediaKindVideo     MediaKind = "video"
	MediaKindSlideshow MediaKind = "slideshow"
)

// MediaItem is a reusable piece of content in a collection.
// Videos carry one URL, slideshows carry one URL per image.
type MediaItem struct {
	ID   string    `json:"id"`
	Kind MediaKind `json:"kind"`
	URLs []string  `json:"urls"`
}

// Collection groups media items a user can bulk schedule
type Collection struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Name      string      `json:"name"`
	Items     []MediaItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
}

// UploadMediaResponse represents the response for a source media upload
type UploadMediaResponse struct {
	ID          string    `json:"id"`
	FileURL     string    `json:"fileUrl"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}
