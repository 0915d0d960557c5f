package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"decoration-mirror/models"
	"decoration-mirror/repository"
)

type discoveryFixture struct {
	remote  *fakeRemote
	records *repository.MemoryDecorationRepository
	runs    *repository.MemorySyncRunRepository
	clock   *stepClock
	service *DiscoveryService
}

func newDiscoveryFixture(pages map[string][]models.Member) *discoveryFixture {
	f := &discoveryFixture{
		remote:  &fakeRemote{pages: pages},
		records: repository.NewMemoryDecorationRepository(),
		runs:    repository.NewMemorySyncRunRepository(),
		clock:   newStepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	f.service = NewDiscoveryService(f.remote, f.records, f.runs, DiscoveryOptions{
		CDNBase: "https://cdn.example.com",
		Now:     f.clock.Now,
		NewID:   sequentialIDs("run"),
	})
	return f
}

func TestRunDiscoveryDeduplicatesSharedAssets(t *testing.T) {
	f := newDiscoveryFixture(map[string][]models.Member{
		"": {
			memberWithDecoration("1", "h1"),
			memberWithDecoration("2", "h1"),
			memberWithDecoration("3", "h2"),
		},
	})

	stats, err := f.service.RunDiscovery(context.Background(), "guild")
	require.NoError(t, err)
	require.Equal(t, 3, stats.Members)
	require.Equal(t, 2, stats.Found)
	require.Equal(t, 2, stats.Added)
	require.Equal(t, 0, stats.Updated)
	require.Equal(t, 2, f.records.Len())
	require.Equal(t, []string{"", "3"}, f.remote.calls)

	runs, err := f.runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, models.SyncStatusCompleted, runs[0].Status)
	require.Equal(t, models.SyncTypeDiscovery, runs[0].SyncType)
	require.Equal(t, 2, runs[0].FoundCount)
	require.Equal(t, 2, runs[0].AddedCount)
	require.NotNil(t, runs[0].CompletedAt)
	require.Nil(t, runs[0].ErrorMessage)

	record, err := f.records.GetByHash(context.Background(), models.CategoryAvatarDecoration, "h1")
	require.NoError(t, err)
	require.True(t, record.IsActive)
	require.Equal(t, "https://cdn.example.com/avatar-decoration-presets/h1.png?size=160&passthrough=true", record.RemoteURL)
}

func TestRunDiscoveryCountsUpdatesOnLaterRun(t *testing.T) {
	f := newDiscoveryFixture(map[string][]models.Member{
		"": {memberWithDecoration("1", "h1"), memberWithDecoration("2", "h2")},
	})

	_, err := f.service.RunDiscovery(context.Background(), "guild")
	require.NoError(t, err)
	first, err := f.records.GetByHash(context.Background(), models.CategoryAvatarDecoration, "h1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	stats, err := f.service.RunDiscovery(context.Background(), "guild")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Added)
	require.Equal(t, 2, stats.Updated)
	require.Equal(t, 0, stats.Deactivated)
	require.Equal(t, 2, f.records.Len())

	second, err := f.records.GetByHash(context.Background(), models.CategoryAvatarDecoration, "h1")
	require.NoError(t, err)
	require.Equal(t, first.FirstSeen, second.FirstSeen)
	require.True(t, second.LastSeen.After(first.LastSeen))
}

func TestRunDiscoveryDeactivatesUnseenRecords(t *testing.T) {
	f := newDiscoveryFixture(map[string][]models.Member{
		"": {memberWithDecoration("1", "h1"), memberWithDecoration("2", "h2")},
	})
	_, err := f.service.RunDiscovery(context.Background(), "guild")
	require.NoError(t, err)

	f.remote.pages = map[string][]models.Member{"": {memberWithDecoration("1", "h1")}}
	f.clock.Advance(time.Hour)
	stats, err := f.service.RunDiscovery(context.Background(), "guild")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Deactivated)

	active, err := f.records.ListActive(context.Background(), models.CategoryAvatarDecoration)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "h1", active[0].ContentHash)

	gone, err := f.records.GetByHash(context.Background(), models.CategoryAvatarDecoration, "h2")
	require.NoError(t, err)
	require.False(t, gone.IsActive)
}

func TestRunDiscoveryRecordsFailedRun(t *testing.T) {
	f := newDiscoveryFixture(nil)
	f.remote.err = errors.New("connection reset")

	_, err := f.service.RunDiscovery(context.Background(), "guild")
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")

	runs, err := f.runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, models.SyncStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].ErrorMessage)
	require.Contains(t, *runs[0].ErrorMessage, "connection reset")
}

func TestRunDiscoveryFailsWhenStoreUnavailable(t *testing.T) {
	f := newDiscoveryFixture(map[string][]models.Member{
		"": {memberWithDecoration("1", "h1")},
	})
	f.records.FailWith = errors.New("registry offline")

	_, err := f.service.RunDiscovery(context.Background(), "guild")
	require.Error(t, err)

	runs, err := f.runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusFailed, runs[0].Status)
}

func TestRunDiscoveryRejectsStuckCursor(t *testing.T) {
	f := newDiscoveryFixture(map[string][]models.Member{
		"":  {memberWithDecoration("1", "h1")},
		"1": {memberWithDecoration("1", "h1")},
	})

	_, err := f.service.RunDiscovery(context.Background(), "guild")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not advance")
}

func TestExtractDecorationsCoversEveryCategory(t *testing.T) {
	member := models.Member{
		AvatarDecorationData: &models.AvatarDecorationData{Asset: "a_guild", SkuID: strPtr("sku-1")},
		User: models.MemberUser{
			ID:                   "42",
			Banner:               strPtr("a_banner"),
			ThemeColors:          []int{0xff0000, 0x00ff00},
			AvatarDecorationData: &models.AvatarDecorationData{Asset: "userdeco"},
			ProfileEffect:        &models.ProfileEffectData{ID: "fx1", SkuID: strPtr("sku-2")},
		},
	}

	refs := ExtractDecorations(member, "https://cdn.example.com/")
	byKey := make(map[models.DecorationKey]models.DecorationRecord)
	for _, ref := range refs {
		byKey[ref.Key()] = ref
	}
	require.Len(t, byKey, 5)

	guildDeco := byKey[models.DecorationKey{Category: models.CategoryAvatarDecoration, ContentHash: "a_guild"}]
	require.True(t, guildDeco.IsAnimated)
	require.True(t, guildDeco.IsPremium)
	require.Equal(t, "sku-1", *guildDeco.SkuID)

	userDeco := byKey[models.DecorationKey{Category: models.CategoryAvatarDecoration, ContentHash: "userdeco"}]
	require.False(t, userDeco.IsAnimated)
	require.False(t, userDeco.IsPremium)

	banner := byKey[models.DecorationKey{Category: models.CategoryBanner, ContentHash: "a_banner"}]
	require.True(t, banner.IsAnimated)
	require.Equal(t, "https://cdn.example.com/banners/42/a_banner.gif?size=600", banner.RemoteURL)

	effect := byKey[models.DecorationKey{Category: models.CategoryProfileEffect, ContentHash: "fx1"}]
	require.Equal(t, "https://cdn.example.com/profile-effects/fx1.png", effect.RemoteURL)

	theme, ok := byKey[models.DecorationKey{Category: models.CategoryTheme, ContentHash: "ff0000_00ff00"}]
	require.True(t, ok)
	require.Empty(t, theme.RemoteURL)
}

func TestExtractDecorationsIgnoresBareMember(t *testing.T) {
	require.Empty(t, ExtractDecorations(models.Member{User: models.MemberUser{ID: "1"}}, "https://cdn.example.com"))
}
