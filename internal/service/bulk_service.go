package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/reelsched/api/internal/client"
	"github.com/reelsched/api/internal/config"
	"github.com/reelsched/api/internal/metrics"
	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/repository"
)

const maxPostMediaBytes = 512 << 20

// SleepFunc waits between batches.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BulkService plans a bulk request into slots and posts them in fixed-size
// batches with a fixed pause in between. Slot failures never affect siblings.
type BulkService struct {
	collections repository.CollectionRepository
	credentials repository.CredentialRepository
	newClient   client.PostingClientFactory
	fetcher     client.Fetcher
	planner     *Planner
	cfg         config.BulkConfig
	sleep       SleepFunc
	logger      *zerolog.Logger
}

func NewBulkService(
	collections repository.CollectionRepository,
	credentials repository.CredentialRepository,
	newClient client.PostingClientFactory,
	fetcher client.Fetcher,
	planner *Planner,
	cfg config.BulkConfig,
	logger *zerolog.Logger,
) *BulkService {
	if cfg.MaxDailyPosts <= 0 {
		cfg.MaxDailyPosts = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	return &BulkService{
		collections: collections,
		credentials: credentials,
		newClient:   newClient,
		fetcher:     fetcher,
		planner:     planner,
		cfg:         cfg,
		sleep:       sleepCtx,
		logger:      logger,
	}
}

// WithSleep replaces the between-batch wait.
func (s *BulkService) WithSleep(fn SleepFunc) *BulkService {
	s.sleep = fn
	return s
}

// postingClient resolves the caller's API key into a client
func (s *BulkService) postingClient(ctx context.Context, userID string) (client.PostingClient, error) {
	key, err := s.credentials.ActiveKey(ctx, userID, repository.ProviderPostBridge)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveCredential
	}
	if err != nil {
		return nil, err
	}
	pc, err := s.newClient(key)
	if errors.Is(err, client.ErrInvalidAPIKey) {
		return nil, ErrNoActiveCredential
	}
	return pc, err
}

// Dispatch runs a whole bulk request. Any error returned means no external
// call was made; past the pre-checks the result always carries every slot.
func (s *BulkService) Dispatch(ctx context.Context, userID string, req *model.BulkScheduleRequest) (*model.BulkScheduleResponse, error) {
	daily := len(req.SelectedAccounts) * req.PostsPerDay
	if daily > s.cfg.MaxDailyPosts {
		metrics.IncBulkRejected("daily_limit")
		return nil, fmt.Errorf("%w: %d accounts x %d posts/day = %d, max %d",
			ErrDailyLimitExceeded, len(req.SelectedAccounts), req.PostsPerDay, daily, s.cfg.MaxDailyPosts)
	}

	start, err := ParseStartDate(req.StartDate)
	if err != nil {
		metrics.IncBulkRejected("start_date")
		return nil, err
	}

	pc, err := s.postingClient(ctx, userID)
	if err != nil {
		metrics.IncBulkRejected("credential")
		return nil, err
	}

	collection, err := s.collections.GetForUser(ctx, req.CollectionID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.IncBulkRejected("collection")
		return nil, ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	media := mediaPool(collection)
	if len(media) == 0 {
		metrics.IncBulkRejected("empty_collection")
		return nil, ErrEmptyCollection
	}

	slots, err := s.planner.Plan(PlanInput{
		Accounts:     req.SelectedAccounts,
		PostsPerDay:  req.PostsPerDay,
		DurationDays: req.DurationDays,
		Start:        start,
		Pool:         media,
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.With().Str("user_id", userID).Str("collection_id", collection.ID).Logger()
	log.Info().Int("slots", len(slots)).Int("batch_size", s.cfg.BatchSize).Msg("bulk dispatch started")

	accounts, err := pc.ListAccounts(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list post-bridge accounts")
		resp := aggregate(failAll(slots, fmt.Errorf("failed to list accounts: %w", err)))
		log.Info().Int("scheduled", resp.Scheduled).Int("errors", resp.Errors).Msg("bulk dispatch finished")
		return resp, nil
	}
	byID := make(map[int]client.SocialAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	results := make([]slotResult, 0, len(slots))
	for lo := 0; lo < len(slots); lo += s.cfg.BatchSize {
		hi := min(lo+s.cfg.BatchSize, len(slots))
		batch := slots[lo:hi]

		if ctx.Err() != nil {
			results = append(results, failAll(batch, fmt.Errorf("dispatch cancelled: %w", ctx.Err()))...)
			continue
		}

		p := pool.NewWithResults[slotResult]().WithMaxGoroutines(len(batch))
		for _, slot := range batch {
			p.Go(func() slotResult {
				return s.runSlot(ctx, pc, byID, slot, req)
			})
		}
		results = append(results, p.Wait()...)

		if hi < len(slots) {
			if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
				log.Warn().Err(err).Msg("bulk dispatch interrupted between batches")
			}
		}
	}

	resp := aggregate(results)
	log.Info().Int("scheduled", resp.Scheduled).Int("errors", resp.Errors).Msg("bulk dispatch finished")
	return resp, nil
}

// CancelPost deletes a post the caller scheduled earlier
func (s *BulkService) CancelPost(ctx context.Context, userID, postID string) error {
	pc, err := s.postingClient(ctx, userID)
	if err != nil {
		return err
	}
	return pc.DeletePost(ctx, postID)
}

type slotResult struct {
	index   int
	success *model.SlotSuccess
	failure *model.SlotFailure
}

func failed(slot model.ScheduleSlot, err error) slotResult {
	metrics.IncSlot("failed")
	return slotResult{
		index: slot.Index,
		failure: &model.SlotFailure{
			Error:       err.Error(),
			AccountID:   slot.AccountID,
			MediaID:     slot.Media.ID,
			ScheduledAt: slot.ScheduledAt,
		},
	}
}

func failAll(slots []model.ScheduleSlot, err error) []slotResult {
	out := make([]slotResult, 0, len(slots))
	for _, slot := range slots {
		out = append(out, failed(slot, err))
	}
	return out
}

// runSlot turns one slot into a post. Panics are folded into the failure.
func (s *BulkService) runSlot(ctx context.Context, pc client.PostingClient, accounts map[int]client.SocialAccount, slot model.ScheduleSlot, req *model.BulkScheduleRequest) (res slotResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(slot, fmt.Errorf("slot panicked: %v", r))
		}
	}()

	account, ok := accounts[slot.AccountID]
	if !ok {
		return failed(slot, client.ErrAccountNotFound)
	}

	mediaIDs, err := s.prepareMedia(ctx, pc, slot.Media)
	if err != nil {
		return failed(slot, err)
	}

	post, err := pc.CreatePost(ctx, &client.CreatePostRequest{
		Caption:                req.Content,
		SocialAccounts:         []int{account.ID},
		Media:                  mediaIDs,
		ScheduledAt:            &slot.ScheduledAt,
		IsDraft:                true,
		PlatformConfigurations: platformConfig(account, req.TikTokSettings),
	})
	if err != nil {
		return failed(slot, fmt.Errorf("create draft: %w", err))
	}

	if !req.IsDraft {
		if _, err := pc.SchedulePost(ctx, post.ID, slot.ScheduledAt); err != nil {
			return failed(slot, fmt.Errorf("schedule post %s: %w", post.ID, err))
		}
		metrics.IncSlot("scheduled")
	} else {
		metrics.IncSlot("draft")
	}

	return slotResult{
		index: slot.Index,
		success: &model.SlotSuccess{
			PostID:      post.ID,
			AccountID:   account.ID,
			MediaID:     slot.Media.ID,
			ScheduledAt: slot.ScheduledAt,
			Draft:       req.IsDraft,
		},
	}
}

// prepareMedia fetches every file of the item and uploads it to the posting API
func (s *BulkService) prepareMedia(ctx context.Context, pc client.PostingClient, item model.MediaItem) ([]string, error) {
	if len(item.URLs) == 0 {
		return nil, fmt.Errorf("media %s has no files", item.ID)
	}
	urls := item.URLs
	if item.Kind == model.MediaKindVideo {
		urls = urls[:1]
	}

	ids := make([]string, 0, len(urls))
	for i, u := range urls {
		data, contentType, err := s.fetcher.FetchBytes(ctx, u, maxPostMediaBytes)
		if err != nil {
			return nil, err
		}
		mt := mimetype.Detect(data)
		if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
			contentType = mt.String()
		}
		name := path.Base(u)
		if cut := strings.IndexAny(name, "?#"); cut >= 0 {
			name = name[:cut]
		}
		if name == "" || name == "." || name == "/" {
			name = fmt.Sprintf("%s-%d%s", item.ID, i, mt.Extension())
		}

		id, err := pc.UploadMedia(ctx, name, contentType, data)
		if err != nil {
			return nil, fmt.Errorf("upload media: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func platformConfig(account client.SocialAccount, tt *model.TikTokSettings) *client.PlatformConfigurations {
	if tt == nil || !strings.EqualFold(account.Platform, "tiktok") {
		return nil
	}
	return &client.PlatformConfigurations{
		TikTok: &client.TikTokConfiguration{
			PrivacyLevel:   tt.Privacy,
			DisableComment: !tt.AllowComments,
			DisableDuet:    !tt.AllowDuet,
			DisableStitch:  !tt.AllowStitch,
		},
	}
}

// mediaPool flattens the collection into the ordered pool slots cycle through
func mediaPool(c *model.Collection) []model.MediaItem {
	items := make([]model.MediaItem, 0, len(c.Items))
	for _, item := range c.Items {
		if len(item.URLs) == 0 {
			continue
		}
		items = append(items, item)
	}
	return items
}

func aggregate(results []slotResult) *model.BulkScheduleResponse {
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	resp := &model.BulkScheduleResponse{
		Success: true,
		Details: model.BulkScheduleDetails{
			Successful: make([]model.SlotSuccess, 0),
			Failed:     make([]model.SlotFailure, 0),
		},
	}
	for _, r := range results {
		if r.success != nil {
			resp.Details.Successful = append(resp.Details.Successful, *r.success)
		} else if r.failure != nil {
			resp.Details.Failed = append(resp.Details.Failed, *r.failure)
		}
	}
	resp.Scheduled = len(resp.Details.Successful)
	resp.Errors = len(resp.Details.Failed)
	return resp
}
