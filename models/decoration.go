package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCategory is returned when a category string is not recognised
var ErrInvalidCategory = errors.New("invalid decoration category")

// Category identifies the kind of decoration asset
type Category string

const (
	CategoryAvatarDecoration Category = "avatar_decoration"
	CategoryBanner           Category = "banner"
	CategoryProfileEffect    Category = "profile_effect"
	CategoryTheme            Category = "theme"
)

// AllCategories lists every known category in discovery order
var AllCategories = []Category{
	CategoryAvatarDecoration,
	CategoryBanner,
	CategoryProfileEffect,
	CategoryTheme,
}

// ParseCategory converts user input (query params, CLI flags) into a Category
func ParseCategory(raw string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, c := range AllCategories {
		if string(c) == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
}

// HasAsset reports whether records of this category carry a downloadable image.
// Themes are pure color tuples.
func (c Category) HasAsset() bool {
	switch c {
	case CategoryAvatarDecoration, CategoryBanner, CategoryProfileEffect:
		return true
	default:
		return false
	}
}

// DecorationRecord is one distinct decoration asset in the registry
type DecorationRecord struct {
	Category           Category  `json:"category"`
	ContentHash        string    `json:"contentHash"`
	SkuID              *string   `json:"skuId,omitempty"`
	DisplayName        *string   `json:"displayName,omitempty"`
	Description        *string   `json:"description,omitempty"`
	IsAnimated         bool      `json:"isAnimated"`
	IsPremium          bool      `json:"isPremium"`
	RemoteURL          string    `json:"remoteUrl"`
	LocalFullPath      *string   `json:"localFullPath,omitempty"`
	LocalThumbnailPath *string   `json:"localThumbnailPath,omitempty"`
	FirstSeen          time.Time `json:"firstSeen"`
	LastSeen           time.Time `json:"lastSeen"`
	IsActive           bool      `json:"isActive"`
}

// Key returns the dedup key of the record
func (r DecorationRecord) Key() DecorationKey {
	return DecorationKey{Category: r.Category, ContentHash: r.ContentHash}
}

// IsMaterialized reports whether the record points at a local full-size file
func (r DecorationRecord) IsMaterialized() bool {
	return r.LocalFullPath != nil && *r.LocalFullPath != ""
}

// DecorationKey is the (category, contentHash) pair that identifies an asset
type DecorationKey struct {
	Category    Category
	ContentHash string
}

func (k DecorationKey) String() string {
	return string(k.Category) + ":" + k.ContentHash
}

// SizeSpec is a target bounding box in pixels
type SizeSpec struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OptimizedPaths holds the files written for one materialized asset
type OptimizedPaths struct {
	FullPath  string `json:"fullPath"`
	ThumbPath string `json:"thumbPath"`
}
