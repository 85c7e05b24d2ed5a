package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"inbox/internal/db"
	"inbox/internal/mediaurl"
)

// IDPrefix starts every blob ID issued by the local store.
const IDPrefix = "blb"

const (
	attachmentDir = "attachments"
	previewDir    = "previews"
)

var (
	ErrFileTooLarge   = errors.New("attachment too large")
	ErrDisallowedType = errors.New("attachment type not allowed")
	ErrExecutableFile = errors.New("executable attachments are not allowed")
	ErrInvalidPath    = errors.New("invalid blob path")
)

// StoredBlob describes an attachment after it has been written. ID is the
// key a message keeps to find the file again.
type StoredBlob struct {
	ID           string
	MimeType     string
	SizeBytes    int64
	OriginalName string
	URL          string
	PreviewURL   string
	CreatedAt    time.Time
}

// Service keeps attachments on the local filesystem under
// attachments/<shard>/<id> with JPEG previews under previews/<shard>/<id>.jpg.
type Service struct {
	rootDir        string
	baseURL        string
	maxUploadBytes int64
}

func NewService(rootDir, baseURL string, maxUploadBytes int64) (*Service, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be > 0")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root directory: %w", err)
	}

	return &Service{rootDir: rootDir, baseURL: baseURL, maxUploadBytes: maxUploadBytes}, nil
}

// Save checks and stores one attachment. Images also get a preview; a failed
// preview is logged and leaves PreviewURL empty.
func (s *Service) Save(_ context.Context, originalName string, src io.Reader) (*StoredBlob, error) {
	mimeType, body, err := inspect(src)
	if err != nil {
		return nil, err
	}

	blobID, err := db.GenerateID(IDPrefix)
	if err != nil {
		return nil, fmt.Errorf("generating blob id: %w", err)
	}

	written, err := s.writeFile(attachmentPath(blobID), io.LimitReader(body, s.maxUploadBytes+1), s.maxUploadBytes)
	if err != nil {
		return nil, err
	}

	stored := &StoredBlob{
		ID:           blobID,
		MimeType:     mimeType,
		SizeBytes:    written,
		OriginalName: cleanOriginalName(originalName),
		URL:          mediaurl.Blob(s.baseURL, blobID),
		CreatedAt:    time.Now().UTC(),
	}

	if strings.HasPrefix(mimeType, "image/") {
		if err := s.storePreview(blobID); err != nil {
			slog.Warn("error generating attachment preview", "component", "blob", "error", err, "blob_id", blobID)
		} else {
			stored.PreviewURL = mediaurl.BlobPreview(s.baseURL, blobID)
		}
	}

	return stored, nil
}

func (s *Service) storePreview(blobID string) error {
	file, err := s.Open(attachmentPath(blobID))
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := renderPreview(file, DefaultPreviewMaxEdge)
	if err != nil {
		return err
	}

	_, err = s.writeFile(previewPath(blobID), bytes.NewReader(data), 0)
	return err
}

// OpenBlob opens the stored file for a blob ID.
func (s *Service) OpenBlob(blobID string) (*os.File, error) {
	return s.Open(attachmentPath(blobID))
}

// OpenPreview opens the JPEG preview for a blob ID, if one was generated.
func (s *Service) OpenPreview(blobID string) (*os.File, error) {
	return s.Open(previewPath(blobID))
}

// Open opens a file by its path relative to the store root.
func (s *Service) Open(rel string) (*os.File, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// Remove deletes a blob and its preview. Missing files are not an error.
func (s *Service) Remove(_ context.Context, blobID string) error {
	for _, rel := range []string{previewPath(blobID), attachmentPath(blobID)} {
		abs, err := s.resolve(rel)
		if err != nil {
			return err
		}
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", rel, err)
		}
	}
	return nil
}

// writeFile streams src into rel through a temp file and renames it into
// place. A positive limit rejects content longer than limit bytes.
func (s *Service) writeFile(rel string, src io.Reader, limit int64) (int64, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(abs)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("creating temporary blob file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, src)
	if err != nil {
		return 0, fmt.Errorf("writing blob file: %w", err)
	}
	if limit > 0 && written > limit {
		return 0, ErrFileTooLarge
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temporary blob file: %w", err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return 0, fmt.Errorf("finalizing blob file: %w", err)
	}
	return written, nil
}

func (s *Service) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.rootDir, clean), nil
}

func attachmentPath(blobID string) string {
	return path.Join(attachmentDir, shard(blobID), blobID)
}

func previewPath(blobID string) string {
	return path.Join(previewDir, shard(blobID), blobID+".jpg")
}

// shard spreads files over subdirectories by the first two random characters.
func shard(blobID string) string {
	random := strings.TrimPrefix(blobID, IDPrefix+"_")
	if len(random) < 2 {
		return "xx"
	}
	return random[:2]
}
