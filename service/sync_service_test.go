package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"decoration-mirror/models"
	"decoration-mirror/repository"
	"decoration-mirror/utils"
)

type syncFixture struct {
	root        string
	records     *repository.MemoryDecorationRepository
	runs        *repository.MemorySyncRunRepository
	pacing      *recordingSleep
	downloads   int32
	server      *httptest.Server
	service     *SyncService
	staticPNG   []byte
	animatedGIF []byte
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		root:        t.TempDir(),
		records:     repository.NewMemoryDecorationRepository(),
		runs:        repository.NewMemorySyncRunRepository(),
		pacing:      &recordingSleep{},
		staticPNG:   pngBytes(t, 64, 64),
		animatedGIF: animatedGIFBytes(t, 64, 64),
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.downloads, 1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/missing"):
			http.NotFound(w, r)
		case strings.HasSuffix(r.URL.Path, ".gif"):
			_, _ = w.Write(f.animatedGIF)
		default:
			_, _ = w.Write(f.staticPNG)
		}
	}))
	t.Cleanup(f.server.Close)

	downloader := NewDownloadService(DownloadOptions{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		HTTPClient:  f.server.Client(),
		Sleep:       (&recordingSleep{}).Sleep,
	})
	f.service = NewSyncService(f.records, f.runs, downloader, NewImageOptimizer(), SyncOptions{
		Layout:       utils.AssetLayout{Root: f.root},
		RequestDelay: 200 * time.Millisecond,
		Sleep:        f.pacing.Sleep,
		NewID:        sequentialIDs("mat"),
	})
	return f
}

func (f *syncFixture) seed(t *testing.T, category models.Category, hash, path string, animated bool) {
	t.Helper()
	_, err := f.records.Upsert(context.Background(), &models.DecorationRecord{
		Category:    category,
		ContentHash: hash,
		IsAnimated:  animated,
		RemoteURL:   f.server.URL + path,
		IsActive:    true,
	})
	require.NoError(t, err)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	f.seed(t, models.CategoryAvatarDecoration, "h1", "/h1.png", false)
	f.seed(t, models.CategoryAvatarDecoration, "h2", "/h2.png", false)

	stats, err := f.service.Materialize(context.Background(), models.CategoryAvatarDecoration)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.Success)
	require.Equal(t, 0, stats.Skipped)
	require.Equal(t, int32(2), atomic.LoadInt32(&f.downloads))
	require.Equal(t, []time.Duration{200 * time.Millisecond}, f.pacing.Delays())

	record, err := f.records.GetByHash(context.Background(), models.CategoryAvatarDecoration, "h1")
	require.NoError(t, err)
	require.True(t, record.IsMaterialized())
	require.Equal(t, filepath.Join(f.root, "avatar-decorations", "h1.webp"), *record.LocalFullPath)
	require.Equal(t, filepath.Join(f.root, "thumbnails", "avatar-decorations", "h1.webp"), *record.LocalThumbnailPath)

	again, err := f.service.Materialize(context.Background(), models.CategoryAvatarDecoration)
	require.NoError(t, err)
	require.Equal(t, 2, again.Skipped)
	require.Equal(t, 0, again.Success)
	require.Equal(t, int32(2), atomic.LoadInt32(&f.downloads))

	runs, err := f.runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		require.Equal(t, models.SyncTypeMaterialize, run.SyncType)
		require.Equal(t, models.SyncStatusCompleted, run.Status)
		require.NotNil(t, run.Category)
		require.Equal(t, models.CategoryAvatarDecoration, *run.Category)
	}
}

func TestMaterializeRedownloadsWhenFileMissing(t *testing.T) {
	f := newSyncFixture(t)
	f.seed(t, models.CategoryProfileEffect, "p1", "/p1.png", false)

	_, err := f.service.Materialize(context.Background(), models.CategoryProfileEffect)
	require.NoError(t, err)
	record, err := f.records.GetByHash(context.Background(), models.CategoryProfileEffect, "p1")
	require.NoError(t, err)
	require.NoError(t, os.Remove(*record.LocalFullPath))

	stats, err := f.service.Materialize(context.Background(), models.CategoryProfileEffect)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Success)
	require.True(t, utils.FileExists(*record.LocalFullPath))
}

func TestMaterializeCountsFailuresWithoutAborting(t *testing.T) {
	f := newSyncFixture(t)
	f.seed(t, models.CategoryBanner, "b1", "/missing/b1.png", false)
	f.seed(t, models.CategoryBanner, "b2", "/b2.png", false)

	stats, err := f.service.Materialize(context.Background(), models.CategoryBanner)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, stats.Success)

	failed, err := f.records.GetByHash(context.Background(), models.CategoryBanner, "b1")
	require.NoError(t, err)
	require.False(t, failed.IsMaterialized())

	runs, err := f.runs.List(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusCompleted, runs[0].Status)
	require.Equal(t, 2, runs[0].FoundCount)
	require.Equal(t, 1, runs[0].AddedCount)
	require.Equal(t, 1, runs[0].FailedCount)
}

func TestMaterializeKeepsAnimatedOriginal(t *testing.T) {
	f := newSyncFixture(t)
	f.seed(t, models.CategoryAvatarDecoration, "a_h1", "/a_h1.gif", true)

	stats, err := f.service.Materialize(context.Background(), models.CategoryAvatarDecoration)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Success)

	record, err := f.records.GetByHash(context.Background(), models.CategoryAvatarDecoration, "a_h1")
	require.NoError(t, err)
	written, err := os.ReadFile(*record.LocalFullPath)
	require.NoError(t, err)
	require.Equal(t, f.animatedGIF, written)
	require.Equal(t, ".gif", filepath.Ext(*record.LocalFullPath))
}

func TestMaterializeRejectsTheme(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.service.Materialize(context.Background(), models.CategoryTheme)
	require.ErrorIs(t, err, ErrNotMaterializable)

	runs, err := f.runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestMaterializeFailsRunWhenStoreUnavailable(t *testing.T) {
	f := newSyncFixture(t)
	f.records.FailWith = errors.New("registry offline")

	_, err := f.service.Materialize(context.Background(), models.CategoryBanner)
	require.Error(t, err)

	runs, err := f.runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, models.SyncStatusFailed, runs[0].Status)
	require.Contains(t, *runs[0].ErrorMessage, "registry offline")
}

// deactivatingDownloader closes a discovery pass while the download is in flight
type deactivatingDownloader struct {
	records *repository.MemoryDecorationRepository
	cutoff  time.Time
	data    []byte
}

func (d *deactivatingDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	if _, err := d.records.DeactivateUnseen(ctx, models.CategoryAvatarDecoration, d.cutoff); err != nil {
		return nil, err
	}
	return d.data, nil
}

func TestMaterializeDoesNotReactivateRecordDeactivatedMidDownload(t *testing.T) {
	root := t.TempDir()
	records := repository.NewMemoryDecorationRepository()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := records.Upsert(context.Background(), &models.DecorationRecord{
		Category:    models.CategoryAvatarDecoration,
		ContentHash: "gone",
		RemoteURL:   "https://cdn.example.com/avatar-decoration-presets/gone.png",
		LastSeen:    t0,
		IsActive:    true,
	})
	require.NoError(t, err)

	downloader := &deactivatingDownloader{records: records, cutoff: t0.Add(time.Minute), data: pngBytes(t, 32, 32)}
	svc := NewSyncService(records, repository.NewMemorySyncRunRepository(), downloader, NewImageOptimizer(), SyncOptions{
		Layout: utils.AssetLayout{Root: root},
		Sleep:  (&recordingSleep{}).Sleep,
	})

	stats, err := svc.Materialize(context.Background(), models.CategoryAvatarDecoration)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Success)

	record, err := records.GetByHash(context.Background(), models.CategoryAvatarDecoration, "gone")
	require.NoError(t, err)
	require.False(t, record.IsActive)
	require.True(t, record.IsMaterialized())

	active, err := records.ListActive(context.Background(), models.CategoryAvatarDecoration)
	require.NoError(t, err)
	require.Empty(t, active)
}
