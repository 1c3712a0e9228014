package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/reelsched/api/internal/client"
	"github.com/reelsched/api/internal/model"
)

// sniffLen is how much of the upload mimetype needs to see
const sniffLen = 3072

// UploadService stores source media that render jobs later reference by URL
type UploadService struct {
	storage client.StorageClient
}

// NewUploadService creates a new upload service. storage may be nil when the
// blob store is not configured.
func NewUploadService(storage client.StorageClient) *UploadService {
	return &UploadService{storage: storage}
}

// UploadMedia sniffs the file type, accepts images, videos and audio, and
// stores it under the caller's upload prefix.
func (s *UploadService) UploadMedia(ctx context.Context, userID string, file io.Reader, size int64) (*model.UploadMediaResponse, error) {
	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if !allowedUpload(mt) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mt.String())
	}

	id := uuid.New().String()
	key := fmt.Sprintf("uploads/%s/%s%s", userID, id, mt.Extension())

	url, err := s.storage.Upload(ctx, key, io.MultiReader(bytes.NewReader(head), file), mt.String())
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	return &model.UploadMediaResponse{
		ID:          id,
		FileURL:     url,
		ContentType: mt.String(),
		Size:        size,
		CreatedAt:   time.Now(),
	}, nil
}

func allowedUpload(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		v := m.String()
		if strings.HasPrefix(v, "image/") || strings.HasPrefix(v, "video/") || strings.HasPrefix(v, "audio/") {
			return true
		}
	}
	return false
}
