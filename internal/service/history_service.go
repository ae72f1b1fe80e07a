package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/hiswaca/etl-console/internal/client"
	"github.com/hiswaca/etl-console/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HistoryService passes upload history calls through to the backend and mirrors
// output workbooks to object storage when one is configured.
type HistoryService struct {
	api    client.PortalAPI
	store  client.ArtifactStore
	urlTTL time.Duration
}

// Artifact is either a presigned URL to a mirrored copy or the raw download.
type Artifact struct {
	URL       string          `json:"url,omitempty"`
	Key       string          `json:"key,omitempty"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	Download  *client.Download `json:"-"`
}

// NewHistoryService creates the service. store may be nil.
func NewHistoryService(api client.PortalAPI, store client.ArtifactStore, urlTTL time.Duration) *HistoryService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &HistoryService{api: api, store: store, urlTTL: urlTTL}
}

func (s *HistoryService) List(ctx context.Context, page int, status model.UploadStatus) (*model.UploadPage, error) {
	if page < 1 {
		page = 1
	}
	return s.api.ListUploads(ctx, page, status)
}

func (s *HistoryService) Get(ctx context.Context, id int) (*model.UploadRecord, error) {
	return s.api.GetUpload(ctx, id)
}

// Delete removes the record on the backend and drops the mirrored artifact.
func (s *HistoryService) Delete(ctx context.Context, id int) error {
	if err := s.api.DeleteUpload(ctx, id); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, client.ArtifactKey(id)); err != nil {
			log.Printf("[ETL] failed to drop mirrored artifact of upload %d: %v", id, err)
		}
	}
	return nil
}

// Artifact fetches the output workbook of an upload. With storage configured the
// workbook is copied there and a presigned URL is returned; otherwise the caller
// gets the download to stream and must close it.
func (s *HistoryService) Artifact(ctx context.Context, id int) (*Artifact, error) {
	dl, err := s.api.DownloadOutput(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return &Artifact{Download: dl}, nil
	}
	defer dl.Body.Close()

	data, err := io.ReadAll(dl.Body)
	if err != nil {
		return nil, &client.TransportError{Op: "read artifact", Err: err}
	}

	contentType := dl.ContentType
	if contentType == "" {
		contentType = xlsxContentType
	}

	key := client.ArtifactKey(id)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("mirror artifact of upload %d: %w", id, err)
	}

	url, err := s.store.SignedURL(ctx, key, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("sign artifact of upload %d: %w", id, err)
	}

	expires := time.Now().UTC().Add(s.urlTTL)
	log.Printf("[ETL] mirrored output of upload %d to %s (%d bytes)", id, key, len(data))
	return &Artifact{URL: url, Key: key, ExpiresAt: &expires}, nil
}
