package blob

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"inbox/internal/db"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
	DefaultOrphanGrace     = 15 * time.Minute
)

// AttachmentIndex reports whether a stored blob is referenced by a message.
type AttachmentIndex interface {
	FindAttachment(ctx context.Context, key string) (*db.Attachment, error)
}

// CleanupService removes local attachment files that no message references,
// such as uploads whose send transaction failed after the file was written.
type CleanupService struct {
	index    AttachmentIndex
	blobs    *Service
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
}

func NewCleanupService(index AttachmentIndex, blobs *Service) *CleanupService {
	return &CleanupService{
		index:    index,
		blobs:    blobs,
		interval: DefaultCleanupInterval,
		grace:    DefaultOrphanGrace,
		now:      time.Now,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting blob cleanup service", "component", "blob_cleanup", "interval", s.interval)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping blob cleanup service", "component", "blob_cleanup")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps the attachment directory and returns the number of removed blobs.
func (s *CleanupService) RunOnce(ctx context.Context) int {
	root := filepath.Join(s.blobs.rootDir, attachmentDir)
	cutoff := s.now().Add(-s.grace)
	removed := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}

		blobID := d.Name()
		if !db.IsValidID(IDPrefix, blobID) {
			return nil
		}

		_, err = s.index.FindAttachment(ctx, blobID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			slog.Error("error looking up attachment", "component", "blob_cleanup", "error", err, "blob_id", blobID)
			return nil
		}

		if err := s.blobs.Remove(ctx, blobID); err != nil {
			slog.Warn("error deleting orphaned attachment", "component", "blob_cleanup", "error", err, "blob_id", blobID)
			return nil
		}
		removed++
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("error sweeping attachments", "component", "blob_cleanup", "error", err)
	}

	if removed > 0 {
		slog.Info("deleted orphaned attachments", "component", "blob_cleanup", "count", removed)
	}
	return removed
}
