package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/repository"
	"github.com/SergeiKhy/shortlinks/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func newMapping(path string, createdAt time.Time) *models.Mapping {
	return &models.Mapping{
		Path:      path,
		Target:    "https://example.com/" + path,
		Enabled:   true,
		CreatedAt: createdAt,
	}
}

// TestMappingRepository_Integration проверяет SQL на настоящем PostgreSQL
func TestMappingRepository_Integration(t *testing.T) {
	env := testutils.SetupTestEnvironment(t)
	repo := repository.NewMappingRepository(env.DB)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("создание и чтение", func(t *testing.T) {
		env.Reset(t)

		m := newMapping("promo", base)
		m.Name = strPtr("Промо")
		m.Expiry = timePtr(base.AddDate(0, 1, 0))
		require.NoError(t, repo.Create(ctx, m))

		got, err := repo.GetByPath(ctx, "promo")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/promo", got.Target)
		assert.Equal(t, "Промо", *got.Name)
		assert.True(t, m.Expiry.Equal(*got.Expiry))
		assert.True(t, base.Equal(got.CreatedAt))

		_, err = repo.GetByPath(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrMappingNotFound)
	})

	t.Run("уникальность пути", func(t *testing.T) {
		env.Reset(t)

		require.NoError(t, repo.Create(ctx, newMapping("dup", base)))
		err := repo.Create(ctx, newMapping("dup", base))
		assert.ErrorIs(t, err, repository.ErrPathExists)
	})

	t.Run("wechat без QR отклоняется базой", func(t *testing.T) {
		env.Reset(t)

		m := newMapping("wx", base)
		m.IsWechat = true
		assert.ErrorIs(t, repo.Create(ctx, m), repository.ErrMissingQRCode)

		m.QRCodeData = strPtr("weixin://qr")
		assert.NoError(t, repo.Create(ctx, m))
	})

	t.Run("переименование сохраняет created_at", func(t *testing.T) {
		env.Reset(t)

		require.NoError(t, repo.Create(ctx, newMapping("old", base)))
		require.NoError(t, repo.Create(ctx, newMapping("other", base)))

		updated := newMapping("new", time.Now())
		require.NoError(t, repo.Update(ctx, "old", updated))
		assert.True(t, base.Equal(updated.CreatedAt))

		_, err := repo.GetByPath(ctx, "old")
		assert.ErrorIs(t, err, repository.ErrMappingNotFound)

		err = repo.Update(ctx, "new", newMapping("other", base))
		assert.ErrorIs(t, err, repository.ErrPathExists)

		err = repo.Update(ctx, "ghost", newMapping("ghost", base))
		assert.ErrorIs(t, err, repository.ErrMappingNotFound)
	})

	t.Run("активная цель", func(t *testing.T) {
		env.Reset(t)
		now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

		expired := newMapping("expired", base)
		expired.Expiry = timePtr(base)
		disabled := newMapping("disabled", base)
		disabled.Enabled = false
		future := newMapping("future", base)
		future.Expiry = timePtr(now.Add(time.Hour))

		for _, m := range []*models.Mapping{expired, disabled, future, newMapping("forever", base)} {
			require.NoError(t, repo.Create(ctx, m))
		}

		_, err := repo.GetActiveTarget(ctx, "expired", now)
		assert.ErrorIs(t, err, repository.ErrMappingNotFound)
		_, err = repo.GetActiveTarget(ctx, "disabled", now)
		assert.ErrorIs(t, err, repository.ErrMappingNotFound)

		target, err := repo.GetActiveTarget(ctx, "future", now)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/future", target.Target)
		require.NotNil(t, target.Expiry)

		target, err = repo.GetActiveTarget(ctx, "forever", now)
		require.NoError(t, err)
		assert.Nil(t, target.Expiry)
	})

	t.Run("страница и общее число", func(t *testing.T) {
		env.Reset(t)

		for i := 0; i < 12; i++ {
			require.NoError(t, repo.Create(ctx, newMapping(fmt.Sprintf("p%02d", i), base.Add(time.Duration(i)*time.Minute))))
		}
		require.NoError(t, repo.Create(ctx, newMapping("admin", base.Add(time.Hour))))

		mappings, total, err := repo.List(ctx, 0, 5, []string{"admin", "login"})
		require.NoError(t, err)
		assert.EqualValues(t, 12, total)
		require.Len(t, mappings, 5)
		assert.Equal(t, "p11", mappings[0].Path)

		mappings, total, err = repo.List(ctx, 100, 5, []string{"admin"})
		require.NoError(t, err)
		assert.EqualValues(t, 12, total)
		assert.Empty(t, mappings)

		_, total, err = repo.List(ctx, 0, 5, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 13, total)
	})

	t.Run("истекающие и удаление пачками", func(t *testing.T) {
		env.Reset(t)
		now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

		for i := 0; i < 7; i++ {
			m := newMapping(fmt.Sprintf("gone%d", i), base)
			m.Expiry = timePtr(now.Add(-time.Duration(i+1) * time.Hour))
			require.NoError(t, repo.Create(ctx, m))
		}
		soon := newMapping("soon", base)
		soon.Expiry = timePtr(now.Add(24 * time.Hour))
		require.NoError(t, repo.Create(ctx, soon))
		require.NoError(t, repo.Create(ctx, newMapping("forever", base)))

		expiring, err := repo.ListExpiring(ctx, now.Add(72*time.Hour))
		require.NoError(t, err)
		require.Len(t, expiring, 8)
		assert.Equal(t, "gone6", expiring[0].Path)
		assert.Equal(t, "soon", expiring[7].Path)

		paths, err := repo.ListExpiredPaths(ctx, now, 5)
		require.NoError(t, err)
		assert.Len(t, paths, 5)

		deleted, err := repo.DeleteByPaths(ctx, paths)
		require.NoError(t, err)
		assert.EqualValues(t, 5, deleted)

		paths, err = repo.ListExpiredPaths(ctx, now, 5)
		require.NoError(t, err)
		assert.Len(t, paths, 2)

		deleted, err = repo.DeleteByPaths(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("удаление отсутствующего пути", func(t *testing.T) {
		env.Reset(t)
		assert.NoError(t, repo.Delete(ctx, "nothing"))
	})
}
