package model

import "time"

// BulkScheduleRequest represents the request for bulk scheduling a collection
type BulkScheduleRequest struct {
	CollectionID     string          `json:"collectionId" validate:"required"`
	SelectedAccounts []int           `json:"selectedAccounts" validate:"required,min=1,dive,min=1"`
	PostsPerDay      int             `json:"postsPerDay" validate:"required,min=1"`
	DurationDays     int             `json:"durationDays" validate:"required,min=1,max=365"`
	StartDate        string          `json:"startDate" validate:"required"`
	IsDraft          bool            `json:"isDraft"`
	Content          string          `json:"content" validate:"max=2200"`
	TikTokSettings   *TikTokSettings `json:"tiktokSettings" validate:"omitempty"`
}

// TikTokSettings are platform controls forwarded when the target account is on TikTok
type TikTokSettings struct {
	Privacy       string `json:"privacy" validate:"omitempty,max=64"`
	AllowComments bool   `json:"allowComments"`
	AllowDuet     bool   `json:"allowDuet"`
	AllowStitch   bool   `json:"allowStitch"`
}

// ScheduleSlot is one planned post: an account, a media item and a time
type ScheduleSlot struct {
	Index       int
	DayIndex    int
	SlotInDay   int
	AccountID   int
	MediaIndex  int
	Media       MediaItem
	ScheduledAt time.Time
}

// SlotSuccess records a slot that became a post on the posting platform
type SlotSuccess struct {
	PostID      string    `json:"postId"`
	AccountID   int       `json:"accountId"`
	MediaID     string    `json:"mediaId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Draft       bool      `json:"draft"`
}

// SlotFailure records a slot that could not be posted
type SlotFailure struct {
	Error       string    `json:"error"`
	AccountID   int       `json:"accountId"`
	MediaID     string    `json:"mediaId,omitempty"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// BulkScheduleDetails holds the full per-slot breakdown
type BulkScheduleDetails struct {
	Successful []SlotSuccess `json:"successful"`
	Failed     []SlotFailure `json:"failed"`
}

// BulkScheduleResponse represents the response for a completed bulk dispatch
type BulkScheduleResponse struct {
	Success   bool                `json:"success"`
	Scheduled int                 `json:"scheduled"`
	Errors    int                 `json:"errors"`
	Details   BulkScheduleDetails `json:"details"`
}

// CancelPostResponse represents the response for a cancelled scheduled post
type CancelPostResponse struct {
	Success bool   `json:"success"`
	PostID  string `json:"postId"`
}
