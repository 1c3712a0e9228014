package service

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/reelsched/api/internal/config"
	"github.com/reelsched/api/internal/model"
)

// PlanInput is everything the planner needs to expand a bulk request
type PlanInput struct {
	Accounts     []int
	PostsPerDay  int
	DurationDays int
	Start        time.Time
	Pool         []model.MediaItem
}

// Planner expands accounts x posts-per-day x days into timed slots.
// Jitter is best-effort spread, not a fairness guarantee.
type Planner struct {
	windowStart time.Duration
	windowEnd   time.Duration
	jitter      time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPlanner builds a planner. The seed makes jitter reproducible.
func NewPlanner(cfg config.BulkConfig, seed int64) *Planner {
	start, end := cfg.WindowStartHour, cfg.WindowEndHour
	if start < 0 || end > 24 || end <= start {
		start, end = 9, 21
	}
	jitter := cfg.JitterMinutes
	if jitter < 0 {
		jitter = 0
	}
	return &Planner{
		windowStart: time.Duration(start) * time.Hour,
		windowEnd:   time.Duration(end) * time.Hour,
		jitter:      time.Duration(jitter) * time.Minute,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// ParseStartDate accepts a bare date or a full RFC 3339 timestamp and returns
// midnight of that calendar day.
func ParseStartDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w %q", ErrInvalidStartDate, s)
}

// Plan loops day, then slot in day, then account. Slot i gets media i mod len(pool).
func (p *Planner) Plan(in PlanInput) ([]model.ScheduleSlot, error) {
	if len(in.Pool) == 0 {
		return nil, ErrEmptyCollection
	}
	if len(in.Accounts) == 0 || in.PostsPerDay <= 0 || in.DurationDays <= 0 {
		return nil, fmt.Errorf("nothing to plan")
	}

	y, m, d := in.Start.Date()
	loc := in.Start.Location()
	window := p.windowEnd - p.windowStart
	step := window / time.Duration(in.PostsPerDay)

	total := len(in.Accounts) * in.PostsPerDay * in.DurationDays
	slots := make([]model.ScheduleSlot, 0, total)

	for day := 0; day < in.DurationDays; day++ {
		dayStart := time.Date(y, m, d+day, 0, 0, 0, 0, loc)
		dayEnd := time.Date(y, m, d+day+1, 0, 0, 0, 0, loc).Add(-time.Second)

		for slot := 0; slot < in.PostsPerDay; slot++ {
			base := dayStart.Add(p.windowStart + time.Duration(slot)*step)

			for _, account := range in.Accounts {
				at := base.Add(p.nextJitter())
				if at.Before(dayStart) {
					at = dayStart
				}
				if at.After(dayEnd) {
					at = dayEnd
				}

				idx := len(slots)
				mediaIdx := idx % len(in.Pool)
				slots = append(slots, model.ScheduleSlot{
					Index:       idx,
					DayIndex:    day,
					SlotInDay:   slot,
					AccountID:   account,
					MediaIndex:  mediaIdx,
					Media:       in.Pool[mediaIdx],
					ScheduledAt: at.Truncate(time.Second),
				})
			}
		}
	}
	return slots, nil
}

// JitterBound is the largest offset nextJitter can return.
func (p *Planner) JitterBound() time.Duration {
	return p.jitter
}

// Window returns the daytime window as offsets from midnight.
func (p *Planner) Window() (time.Duration, time.Duration) {
	return p.windowStart, p.windowEnd
}

func (p *Planner) nextJitter() time.Duration {
	if p.jitter <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	span := int64(p.jitter/time.Second)*2 + 1
	return time.Duration(p.rng.Int63n(span))*time.Second - p.jitter
}
