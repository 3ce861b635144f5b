// Package media uploads Pulse videos and thumbnails and returns the URL the
// Pulse document should reference.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("media: empty upload")
	// ErrUnsupported is returned for content that is neither video nor image.
	ErrUnsupported = errors.New("media: unsupported content type")
)

// Uploader stores a media file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// videoTypes covers extensions missing from the mime package's builtin table
// on systems without /etc/mime.types.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// ContentType guesses the type from the extension, then from the bytes.
func ContentType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// check validates an upload and returns its content type.
func check(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	ct := ContentType(name, data)
	base, _, _ := strings.Cut(ct, ";")
	if !strings.HasPrefix(base, "video/") && !strings.HasPrefix(base, "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ct)
	}
	return base, nil
}

// ObjectKey places an upload under pulses/YYYY/MM/ with a random name that
// keeps the original extension.
func ObjectKey(name string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(name))
	return path.Join("pulses", now.UTC().Format("2006"), now.UTC().Format("01"), uuid.NewString()+ext)
}
