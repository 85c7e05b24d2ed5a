package blob

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"inbox/internal/db"
)

func newTestService(t *testing.T, maxBytes int64) *Service {
	t.Helper()

	svc, err := NewService(t.TempDir(), "https://chat.example.com", maxBytes)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestSaveRejectsUnsafeContent(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		wantErr error
	}{
		{name: "windows executable", file: "payload.png", content: []byte("MZ\x90\x00\x03\x00"), wantErr: ErrExecutableFile},
		{name: "elf binary", file: "notes.txt", content: []byte("\x7fELF\x02\x01\x01"), wantErr: ErrExecutableFile},
		{name: "shell script", file: "run.txt", content: []byte("#!/bin/sh\necho hi\n"), wantErr: ErrExecutableFile},
		{name: "html page", file: "page.txt", content: []byte("<html><body>hi</body></html>"), wantErr: ErrDisallowedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, 1024*1024)

			_, err := svc.Save(context.Background(), tt.file, bytes.NewReader(tt.content))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Save() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAllowsUnknownBinary(t *testing.T) {
	svc := newTestService(t, 1024*1024)

	stored, err := svc.Save(context.Background(), "blob.bin", bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03, 0x04}))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if stored.MimeType != "application/octet-stream" {
		t.Fatalf("stored.MimeType = %q, want application/octet-stream", stored.MimeType)
	}
	if stored.SizeBytes != 5 {
		t.Fatalf("stored.SizeBytes = %d, want 5", stored.SizeBytes)
	}
	if stored.URL != "https://chat.example.com/media/"+stored.ID {
		t.Fatalf("stored.URL = %q", stored.URL)
	}
	if stored.PreviewURL != "" {
		t.Fatalf("stored.PreviewURL = %q, want empty for non-image", stored.PreviewURL)
	}

	f, err := svc.OpenBlob(stored.ID)
	if err != nil {
		t.Fatalf("OpenBlob() error = %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x00, 0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("stored bytes = %v", got)
	}
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	svc := newTestService(t, 16)

	_, err := svc.Save(context.Background(), "big.bin", bytes.NewReader(make([]byte, 17)))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Save() error = %v, want ErrFileTooLarge", err)
	}
}

func TestSaveImageGeneratesPreview(t *testing.T) {
	svc := newTestService(t, 1024*1024)

	stored, err := svc.Save(context.Background(), "photo.png", bytes.NewReader(pngBytes(t, 900, 300)))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if stored.MimeType != "image/png" {
		t.Fatalf("stored.MimeType = %q, want image/png", stored.MimeType)
	}
	if stored.PreviewURL == "" {
		t.Fatal("stored.PreviewURL is empty, want preview for image")
	}

	f, err := svc.OpenPreview(stored.ID)
	if err != nil {
		t.Fatalf("OpenPreview() error = %v", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if format != "jpeg" || cfg.Width != DefaultPreviewMaxEdge || cfg.Height != 160 {
		t.Fatalf("preview = %s %dx%d, want jpeg %dx160", format, cfg.Width, cfg.Height, DefaultPreviewMaxEdge)
	}
}

func TestRemoveDeletesBlobAndPreview(t *testing.T) {
	svc := newTestService(t, 1024*1024)
	ctx := context.Background()

	stored, err := svc.Save(ctx, "photo.png", bytes.NewReader(pngBytes(t, 4, 4)))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := svc.Remove(ctx, stored.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := svc.OpenBlob(stored.ID); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("OpenBlob() after Remove error = %v, want ErrNotExist", err)
	}
	if _, err := svc.OpenPreview(stored.ID); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("OpenPreview() after Remove error = %v, want ErrNotExist", err)
	}

	if err := svc.Remove(ctx, stored.ID); err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	svc := newTestService(t, 1024)

	if _, err := svc.Open("../etc/passwd"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("Open() error = %v, want ErrInvalidPath", err)
	}
}

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{w: 100, h: 50, max: 480, wantW: 100, wantH: 50},
		{w: 960, h: 480, max: 480, wantW: 480, wantH: 240},
		{w: 300, h: 1200, max: 480, wantW: 120, wantH: 480},
		{w: 5000, h: 1, max: 480, wantW: 480, wantH: 1},
	}

	for _, tt := range tests {
		gotW, gotH := scaleDimensions(tt.w, tt.h, tt.max)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Fatalf("scaleDimensions(%d, %d, %d) = %d, %d, want %d, %d", tt.w, tt.h, tt.max, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

func TestRenderPreviewFlattensTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	data, err := renderPreview(bytes.NewReader(buf.Bytes()), DefaultPreviewMaxEdge)
	if err != nil {
		t.Fatalf("renderPreview() error = %v", err)
	}

	preview, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("jpeg.Decode() error = %v", err)
	}
	r, g, b, _ := preview.At(1, 1).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Fatalf("preview pixel = (%d, %d, %d), want near white", r>>8, g>>8, b>>8)
	}
}

func TestRenderPreviewRejectsHugeImages(t *testing.T) {
	data := pngBytes(t, 1, 1)

	// Rewrite the IHDR dimensions to 10000x10000 and fix up its checksum.
	binary.BigEndian.PutUint32(data[16:20], 10000)
	binary.BigEndian.PutUint32(data[20:24], 10000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	_, err := renderPreview(bytes.NewReader(data), DefaultPreviewMaxEdge)
	if !errors.Is(err, errPreviewTooLarge) {
		t.Fatalf("renderPreview() error = %v, want errPreviewTooLarge", err)
	}
}

type fakeIndex struct {
	keys map[string]bool
}

func (f *fakeIndex) FindAttachment(_ context.Context, key string) (*db.Attachment, error) {
	if f.keys[key] {
		return &db.Attachment{Key: key}, nil
	}
	return nil, db.ErrNotFound
}

func TestCleanupRemovesOnlyUnreferencedBlobs(t *testing.T) {
	svc := newTestService(t, 1024*1024)
	ctx := context.Background()

	kept, err := svc.Save(ctx, "kept.bin", bytes.NewReader([]byte{0x01}))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	orphan, err := svc.Save(ctx, "orphan.bin", bytes.NewReader([]byte{0x02}))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cleanup := NewCleanupService(&fakeIndex{keys: map[string]bool{kept.ID: true}}, svc)

	if removed := cleanup.RunOnce(ctx); removed != 0 {
		t.Fatalf("RunOnce() within grace removed %d, want 0", removed)
	}

	cleanup.now = func() time.Time { return time.Now().Add(time.Hour) }
	if removed := cleanup.RunOnce(ctx); removed != 1 {
		t.Fatalf("RunOnce() removed %d, want 1", removed)
	}

	if _, err := svc.OpenBlob(kept.ID); err != nil {
		t.Fatalf("OpenBlob(kept) error = %v", err)
	}
	if _, err := svc.OpenBlob(orphan.ID); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("OpenBlob(orphan) error = %v, want ErrNotExist", err)
	}
}

type fakeObjectAPI struct {
	puts    map[string][]byte
	types   map[string]string
	deletes []string
}

func (f *fakeObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts[*in.Key] = data
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreSaveAndRemove(t *testing.T) {
	api := &fakeObjectAPI{puts: map[string][]byte{}, types: map[string]string{}}
	store := newS3Store(api, S3Config{Bucket: "inbox", PublicURL: "https://cdn.example.com/"}, 1024)
	ctx := context.Background()

	stored, err := store.Save(ctx, "photo.png", bytes.NewReader(pngBytes(t, 2, 2)))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(stored.ID, "attachments/") {
		t.Fatalf("stored.ID = %q, want attachments/ prefix", stored.ID)
	}
	if stored.URL != "https://cdn.example.com/"+stored.ID {
		t.Fatalf("stored.URL = %q", stored.URL)
	}
	if api.types[stored.ID] != "image/png" {
		t.Fatalf("uploaded content type = %q, want image/png", api.types[stored.ID])
	}
	if int64(len(api.puts[stored.ID])) != stored.SizeBytes {
		t.Fatalf("uploaded %d bytes, stored.SizeBytes = %d", len(api.puts[stored.ID]), stored.SizeBytes)
	}

	if err := store.Remove(ctx, stored.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(api.deletes) != 1 || api.deletes[0] != stored.ID {
		t.Fatalf("deletes = %v, want [%s]", api.deletes, stored.ID)
	}
}

func TestS3StoreRejectsOversizedFile(t *testing.T) {
	api := &fakeObjectAPI{puts: map[string][]byte{}, types: map[string]string{}}
	store := newS3Store(api, S3Config{Bucket: "inbox", PublicURL: "https://cdn.example.com"}, 8)

	_, err := store.Save(context.Background(), "big.bin", bytes.NewReader(make([]byte, 9)))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Save() error = %v, want ErrFileTooLarge", err)
	}
	if len(api.puts) != 0 {
		t.Fatalf("puts = %d, want 0", len(api.puts))
	}
}

func TestCleanOriginalName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "report.pdf", want: "report.pdf"},
		{name: "path stripped", in: "../../etc/passwd", want: "passwd"},
		{name: "empty", in: "  ", want: "upload.bin"},
		{name: "ascii over limit", in: strings.Repeat("a", 300), want: strings.Repeat("a", 255)},
		// 127 two-byte runes fill 254 bytes; the next rune would straddle the limit.
		{name: "multibyte over limit", in: strings.Repeat("é", 200), want: strings.Repeat("é", 127)},
		{name: "four byte runes", in: strings.Repeat("😀", 70), want: strings.Repeat("😀", 63)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanOriginalName(tt.in)
			if got != tt.want {
				t.Fatalf("cleanOriginalName() = %q (%d bytes), want %q", got, len(got), tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("cleanOriginalName() = %q, not valid UTF-8", got)
			}
		})
	}
}
