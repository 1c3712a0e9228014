package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnsupportedMode = errors.New("unsupported render mode")
	ErrInvalidPayload  = errors.New("invalid render payload")
)

// RenderMode identifies a render template
type RenderMode string

const (
	ModeQuickCut  RenderMode = "tiktok-creative"
	ModeSlideshow RenderMode = "slideshow"
)

// CreateVideoPrefix is the API path prefix that job payloads carry in apiEndpoint
const CreateVideoPrefix = "/api/create-video/"

var knownModes = map[RenderMode]bool{
	ModeQuickCut:  true,
	ModeSlideshow: true,
}

// ParseRenderMode accepts either a bare mode or a full create-video endpoint
func ParseRenderMode(tag string) (RenderMode, error) {
	mode := RenderMode(strings.Trim(strings.TrimPrefix(strings.TrimSpace(tag), CreateVideoPrefix), "/"))
	if !knownModes[mode] {
		return "", fmt.Errorf("%w %q", ErrUnsupportedMode, tag)
	}
	return mode, nil
}

// ClipKind distinguishes still images from video inputs
type ClipKind string

const (
	ClipImage ClipKind = "image"
	ClipVideo ClipKind = "video"
)

// ClipSource is one downloadable input of a render
type ClipSource struct {
	URL      string
	Kind     ClipKind
	Duration time.Duration // only meaningful for images
}

// RenderPlan is the mode-independent description the worker executes
type RenderPlan struct {
	Clips    []ClipSource
	MusicURL string
}

// RenderParams is implemented by every render template's parameter set
type RenderParams interface {
	Mode() RenderMode
	Plan() RenderPlan
}

// QuickCutParams drive the tiktok-creative template: images and videos cut together over music
type QuickCutParams struct {
	Images        []string `json:"images" validate:"omitempty,max=50,dive,url"`
	Videos        []string `json:"videos" validate:"omitempty,max=20,dive,url"`
	Music         *string  `json:"music" validate:"omitempty,url"`
	ImageDuration float64  `json:"imageDuration" validate:"omitempty,min=1,max=15"`
}

func (p *QuickCutParams) Mode() RenderMode { return ModeQuickCut }

func (p *QuickCutParams) Plan() RenderPlan {
	d := secondsToDuration(p.ImageDuration, 3)
	plan := RenderPlan{MusicURL: deref(p.Music)}
	for _, u := range p.Images {
		plan.Clips = append(plan.Clips, ClipSource{URL: u, Kind: ClipImage, Duration: d})
	}
	for _, u := range p.Videos {
		plan.Clips = append(plan.Clips, ClipSource{URL: u, Kind: ClipVideo})
	}
	return plan
}

// SlideshowParams drive the image slideshow template
type SlideshowParams struct {
	Images          []string `json:"images" validate:"required,min=1,max=50,dive,url"`
	SecondsPerImage float64  `json:"secondsPerImage" validate:"omitempty,min=0.5,max=10"`
	Music           *string  `json:"music" validate:"omitempty,url"`
}

func (p *SlideshowParams) Mode() RenderMode { return ModeSlideshow }

func (p *SlideshowParams) Plan() RenderPlan {
	d := secondsToDuration(p.SecondsPerImage, 2.5)
	plan := RenderPlan{MusicURL: deref(p.Music)}
	for _, u := range p.Images {
		plan.Clips = append(plan.Clips, ClipSource{URL: u, Kind: ClipImage, Duration: d})
	}
	return plan
}

// RenderPayload is the decoded form of a job's job_data
type RenderPayload struct {
	Mode   RenderMode
	Params RenderParams
}

type payloadEnvelope struct {
	APIEndpoint string `json:"apiEndpoint"`
	Mode        string `json:"mode"`
}

var payloadValidator = validator.New()

// DecodeRenderPayload decodes and validates job_data into its render variant
func DecodeRenderPayload(data []byte) (*RenderPayload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	tag := env.APIEndpoint
	if tag == "" {
		tag = env.Mode
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: missing apiEndpoint or mode", ErrUnsupportedMode)
	}

	mode, err := ParseRenderMode(tag)
	if err != nil {
		return nil, err
	}

	var params RenderParams
	switch mode {
	case ModeQuickCut:
		params = &QuickCutParams{}
	case ModeSlideshow:
		params = &SlideshowParams{}
	}

	if err := json.Unmarshal(data, params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := payloadValidator.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(params.Plan().Clips) == 0 {
		return nil, fmt.Errorf("%w: no images or videos supplied", ErrInvalidPayload)
	}

	return &RenderPayload{Mode: mode, Params: params}, nil
}

// BuildJobData stamps the endpoint tag onto a request body and checks it decodes
func BuildJobData(mode RenderMode, body []byte) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	delete(fields, "mode")

	endpoint, _ := json.Marshal(CreateVideoPrefix + string(mode))
	fields["apiEndpoint"] = endpoint

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if _, err := DecodeRenderPayload(data); err != nil {
		return nil, err
	}
	return data, nil
}

func secondsToDuration(v, def float64) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v * float64(time.Second))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
