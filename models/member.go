package models

// Member is one entry of the guild member listing
type Member struct {
	User                 MemberUser            `json:"user"`
	Nick                 *string               `json:"nick,omitempty"`
	AvatarDecorationData *AvatarDecorationData `json:"avatar_decoration_data,omitempty"`
}

// MemberUser is the user object embedded in a member
type MemberUser struct {
	ID                   string                `json:"id"`
	Username             string                `json:"username"`
	GlobalName           *string               `json:"global_name,omitempty"`
	Banner               *string               `json:"banner,omitempty"`
	AccentColor          *int                  `json:"accent_color,omitempty"`
	ThemeColors          []int                 `json:"theme_colors,omitempty"`
	AvatarDecorationData *AvatarDecorationData `json:"avatar_decoration_data,omitempty"`
	ProfileEffect        *ProfileEffectData    `json:"profile_effect,omitempty"`
}

// AvatarDecorationData references an avatar decoration preset
type AvatarDecorationData struct {
	Asset     string  `json:"asset"`
	SkuID     *string `json:"sku_id,omitempty"`
	ExpiresAt *int64  `json:"expires_at,omitempty"`
}

// ProfileEffectData references a profile effect
type ProfileEffectData struct {
	ID        string  `json:"id"`
	SkuID     *string `json:"sku_id,omitempty"`
	ExpiresAt *int64  `json:"expires_at,omitempty"`
}
