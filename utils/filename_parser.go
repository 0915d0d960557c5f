package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"decoration-mirror/models"
)

// AssetLayout maps categories to directories under a common asset root:
//
//	<root>/<category-dir>/<hash>.<ext>
//	<root>/thumbnails/<category-dir>/<hash>.webp
type AssetLayout struct {
	Root string
}

const thumbnailsDir = "thumbnails"

var categoryDirs = map[models.Category]string{
	models.CategoryAvatarDecoration: "avatar-decorations",
	models.CategoryProfileEffect:    "profile-effects",
	models.CategoryBanner:           "banners",
}

// CategoryDir returns the directory name used for a category
func CategoryDir(category models.Category) (string, error) {
	dir, ok := categoryDirs[category]
	if !ok {
		return "", fmt.Errorf("category %s has no asset directory", category)
	}
	return dir, nil
}

// FullDir is the directory holding full-size files of a category
func (l AssetLayout) FullDir(category models.Category) (string, error) {
	dir, err := CategoryDir(category)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.Root, dir), nil
}

// ThumbDir is the directory holding thumbnails of a category
func (l AssetLayout) ThumbDir(category models.Category) (string, error) {
	dir, err := CategoryDir(category)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.Root, thumbnailsDir, dir), nil
}

// Bases returns the extension-less full-size and thumbnail paths for an asset
func (l AssetLayout) Bases(category models.Category, contentHash string) (string, string, error) {
	if err := ValidateContentHash(contentHash); err != nil {
		return "", "", err
	}
	fullDir, err := l.FullDir(category)
	if err != nil {
		return "", "", err
	}
	thumbDir, err := l.ThumbDir(category)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(fullDir, contentHash), filepath.Join(thumbDir, contentHash), nil
}

// ValidateContentHash rejects hashes that cannot be used as a file name
func ValidateContentHash(contentHash string) error {
	if contentHash == "" {
		return fmt.Errorf("content hash is empty")
	}
	if strings.ContainsAny(contentHash, `/\.`) || strings.ContainsRune(contentHash, 0) {
		return fmt.Errorf("content hash %q is not a valid file name", contentHash)
	}
	return nil
}

// ParseAssetFileName extracts the content hash from "<hash>.<ext>".
// Dotfiles (in-flight temp files) and names without an extension are rejected.
func ParseAssetFileName(name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, ".") {
		return "", false
	}
	idx := strings.Index(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return "", false
	}
	return name[:idx], true
}
