package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Dir stores uploads on the local filesystem and returns file:// URLs.
type Dir struct {
	Root string
	Now  func() time.Time
}

func (d Dir) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if _, err := check(name, data); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}
	key := ObjectKey(name, now)
	dst := filepath.Join(d.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	abs, err := filepath.Abs(dst)
	if err != nil {
		abs = dst
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
