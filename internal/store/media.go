package store

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MediaStore writes downloaded media bytes to local disk under
// <root>/media/<account>/. Files are named by content hash so re-downloads
// of the same bytes land on the same path.
type MediaStore struct {
	root string
}

func NewMediaStore(root string) *MediaStore {
	return &MediaStore{root: root}
}

// Save persists one media item and returns its storage path.
func (s *MediaStore) Save(account, postID string, index int, sourceURL string, data []byte) (string, error) {
	dir := filepath.Join(s.root, "media", account)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	hash := fmt.Sprintf("%x", md5.Sum(data))
	filename := fmt.Sprintf("%s_%d_%s%s", postID, index, hash[:8], extFromURL(sourceURL))
	path := filepath.Join(dir, filename)

	// Same content already on disk
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return path, nil
}

func extFromURL(sourceURL string) string {
	base := sourceURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	ext := strings.ToLower(filepath.Ext(base))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif", ".mp4", ".mov":
		return ext
	default:
		return ".bin"
	}
}
