package service

import (
	"fmt"
	"strings"

	"decoration-mirror/models"
)

const animatedHashPrefix = "a_"

// ExtractDecorations returns the decoration references carried by one member.
// Timestamps and activity flags are left for the caller to set.
func ExtractDecorations(member models.Member, cdnBase string) []models.DecorationRecord {
	cdnBase = strings.TrimRight(cdnBase, "/")
	var refs []models.DecorationRecord

	for _, deco := range []*models.AvatarDecorationData{member.AvatarDecorationData, member.User.AvatarDecorationData} {
		if deco == nil || strings.TrimSpace(deco.Asset) == "" {
			continue
		}
		asset := strings.TrimSpace(deco.Asset)
		refs = append(refs, models.DecorationRecord{
			Category:    models.CategoryAvatarDecoration,
			ContentHash: asset,
			SkuID:       nonEmpty(deco.SkuID),
			IsAnimated:  strings.HasPrefix(asset, animatedHashPrefix),
			IsPremium:   nonEmpty(deco.SkuID) != nil,
			RemoteURL:   fmt.Sprintf("%s/avatar-decoration-presets/%s.png?size=160&passthrough=true", cdnBase, asset),
		})
	}

	if member.User.Banner != nil && strings.TrimSpace(*member.User.Banner) != "" && member.User.ID != "" {
		hash := strings.TrimSpace(*member.User.Banner)
		animated := strings.HasPrefix(hash, animatedHashPrefix)
		ext := "png"
		if animated {
			ext = "gif"
		}
		refs = append(refs, models.DecorationRecord{
			Category:    models.CategoryBanner,
			ContentHash: hash,
			IsAnimated:  animated,
			IsPremium:   true,
			RemoteURL:   fmt.Sprintf("%s/banners/%s/%s.%s?size=600", cdnBase, member.User.ID, hash, ext),
		})
	}

	if effect := member.User.ProfileEffect; effect != nil && strings.TrimSpace(effect.ID) != "" {
		id := strings.TrimSpace(effect.ID)
		refs = append(refs, models.DecorationRecord{
			Category:    models.CategoryProfileEffect,
			ContentHash: id,
			SkuID:       nonEmpty(effect.SkuID),
			IsAnimated:  strings.HasPrefix(id, animatedHashPrefix),
			IsPremium:   true,
			RemoteURL:   fmt.Sprintf("%s/profile-effects/%s.png", cdnBase, id),
		})
	}

	if colors := member.User.ThemeColors; len(colors) >= 2 {
		refs = append(refs, models.DecorationRecord{
			Category:    models.CategoryTheme,
			ContentHash: ThemeHash(colors[0], colors[1]),
			IsPremium:   true,
		})
	}

	return refs
}

// ThemeHash is the content hash of a (primary, accent) color tuple
func ThemeHash(primary, accent int) string {
	return fmt.Sprintf("%06x_%06x", primary&0xffffff, accent&0xffffff)
}

func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	s := strings.TrimSpace(*value)
	return &s
}
