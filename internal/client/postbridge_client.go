package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsched/api/internal/config"
	"github.com/reelsched/api/internal/metrics"
)

const (
	PostBridgeLiveKeyPrefix = "pb_live_"
	PostBridgeTestKeyPrefix = "pb_test_"
)

var (
	ErrInvalidAPIKey   = errors.New("invalid post-bridge api key")
	ErrAccountNotFound = errors.New("account not found")
)

// ValidateAPIKey checks the live/test prefix convention.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, PostBridgeLiveKeyPrefix) && len(key) > len(PostBridgeLiveKeyPrefix) {
		return nil
	}
	if strings.HasPrefix(key, PostBridgeTestKeyPrefix) && len(key) > len(PostBridgeTestKeyPrefix) {
		return nil
	}
	return ErrInvalidAPIKey
}

// APIError is a non-2xx answer from the posting API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("post-bridge API error (status %d): %s", e.StatusCode, e.Body)
}

// SocialAccount is a connected platform account on the posting service
type SocialAccount struct {
	ID       int    `json:"id"`
	Platform string `json:"platform"`
	Username string `json:"username"`
}

// CreatePostRequest creates a post (draft or scheduled) on the posting service
type CreatePostRequest struct {
	Caption                string                  `json:"caption"`
	SocialAccounts         []int                   `json:"social_accounts"`
	Media                  []string                `json:"media"`
	ScheduledAt            *time.Time              `json:"scheduled_at,omitempty"`
	IsDraft                bool                    `json:"is_draft"`
	PlatformConfigurations *PlatformConfigurations `json:"platform_configurations,omitempty"`
}

// PlatformConfigurations carries per-platform post controls
type PlatformConfigurations struct {
	TikTok *TikTokConfiguration `json:"tiktok,omitempty"`
}

type TikTokConfiguration struct {
	PrivacyLevel   string `json:"privacy_level,omitempty"`
	DisableComment bool   `json:"disable_comment"`
	DisableDuet    bool   `json:"disable_duet"`
	DisableStitch  bool   `json:"disable_stitch"`
}

// Post is the posting service's record of a created post
type Post struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	IsDraft     bool       `json:"is_draft"`
}

type createUploadURLRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size_bytes"`
}

type createUploadURLResponse struct {
	MediaID   string `json:"media_id"`
	UploadURL string `json:"upload_url"`
}

type accountsResponse struct {
	Data []SocialAccount `json:"data"`
}

// PostingClient defines the operations the bulk dispatcher needs from the posting API
type PostingClient interface {
	ListAccounts(ctx context.Context) ([]SocialAccount, error)
	UploadMedia(ctx context.Context, name, contentType string, data []byte) (string, error)
	CreatePost(ctx context.Context, req *CreatePostRequest) (*Post, error)
	SchedulePost(ctx context.Context, postID string, at time.Time) (*Post, error)
	DeletePost(ctx context.Context, postID string) error
}

// PostingClientFactory builds a client for one user's API key.
type PostingClientFactory func(apiKey string) (PostingClient, error)

// PostBridgeClient implements PostingClient for the Post-bridge API
type PostBridgeClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zerolog.Logger
}

// NewPostBridgeFactory returns a factory bound to the configured base URL.
func NewPostBridgeFactory(cfg *config.PostBridgeConfig, logger *zerolog.Logger) PostingClientFactory {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	return func(apiKey string) (PostingClient, error) {
		if err := ValidateAPIKey(apiKey); err != nil {
			return nil, err
		}
		return &PostBridgeClient{
			httpClient: httpClient,
			baseURL:    baseURL,
			apiKey:     strings.TrimSpace(apiKey),
			logger:     logger,
		}, nil
	}
}

// ListAccounts returns the social accounts connected to the key's workspace
func (c *PostBridgeClient) ListAccounts(ctx context.Context) ([]SocialAccount, error) {
	var result accountsResponse
	if err := c.do(ctx, "list_accounts", http.MethodGet, "/v1/social-accounts", nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// UploadMedia reserves an upload slot, PUTs the bytes and returns the media id
func (c *PostBridgeClient) UploadMedia(ctx context.Context, name, contentType string, data []byte) (string, error) {
	var slot createUploadURLResponse
	err := c.do(ctx, "create_upload_url", http.MethodPost, "/v1/media/create-upload-url", &createUploadURLRequest{
		Name:     name,
		MimeType: contentType,
		Size:     len(data),
	}, &slot)
	if err != nil {
		return "", err
	}
	if slot.MediaID == "" || slot.UploadURL == "" {
		return "", fmt.Errorf("post-bridge returned an empty upload slot")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObservePostingCall("upload_media", 0, time.Since(start).Milliseconds())
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObservePostingCall("upload_media", resp.StatusCode, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return slot.MediaID, nil
}

// CreatePost creates a draft or scheduled post
func (c *PostBridgeClient) CreatePost(ctx context.Context, req *CreatePostRequest) (*Post, error) {
	var post Post
	if err := c.do(ctx, "create_post", http.MethodPost, "/v1/posts", req, &post); err != nil {
		return nil, err
	}
	if post.ID == "" {
		return nil, fmt.Errorf("post-bridge returned a post without id")
	}
	return &post, nil
}

// SchedulePost confirms a draft for publication at the given time
func (c *PostBridgeClient) SchedulePost(ctx context.Context, postID string, at time.Time) (*Post, error) {
	body := map[string]any{
		"is_draft":     false,
		"scheduled_at": at.UTC(),
	}
	var post Post
	if err := c.do(ctx, "schedule_post", http.MethodPatch, "/v1/posts/"+url.PathEscape(postID), body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a scheduled or draft post
func (c *PostBridgeClient) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, "delete_post", http.MethodDelete, "/v1/posts/"+url.PathEscape(postID), nil, nil)
}

// do sends a JSON request and decodes the JSON response into result (when non-nil)
func (c *PostBridgeClient) do(ctx context.Context, op, method, endpoint string, body, result any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObservePostingCall(op, 0, time.Since(start).Milliseconds())
		c.logger.Warn().Err(err).Str("op", op).Str("url", req.URL.String()).Msg("post-bridge request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObservePostingCall(op, resp.StatusCode, time.Since(start).Milliseconds())

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("post-bridge call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
