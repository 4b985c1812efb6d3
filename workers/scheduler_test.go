package workers

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/davecheney/wiki/internal/log"
	"github.com/davecheney/wiki/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestScheduler(t *testing.T) {
	t.Run("sent activities outside the retention window are purged", func(t *testing.T) {
		require := require.New(t)
		env := setupTestEnv(t)
		now := time.Now()
		for id, published := range map[string]time.Time{
			"https://local.example/activity/old":    now.Add(-8 * 24 * time.Hour),
			"https://local.example/activity/recent": now.Add(-6 * 24 * time.Hour),
			"https://local.example/activity/new":    now,
		} {
			require.NoError(env.DB.Create(&models.SentActivity{ID: id, Data: "{}", Published: published}).Error)
		}

		s := StartScheduler(context.Background(), env, time.Hour, 7*24*time.Hour)
		defer s.Stop()

		sent := models.NewSentActivities(env.DB)
		for id, want := range map[string]bool{
			"https://local.example/activity/old":    false,
			"https://local.example/activity/recent": true,
			"https://local.example/activity/new":    true,
		} {
			got, err := sent.Exists(id)
			require.NoError(err)
			require.Equal(want, got, id)
		}
	})

	t.Run("stats are refreshed on start", func(t *testing.T) {
		require := require.New(t)
		env := setupTestEnv(t)
		local, err := models.NewInstances(env.DB).CreateLocal("https", "local.example", nil)
		require.NoError(err)
		_, err = models.NewPersons(env.DB).CreateLocal(local, "alice", true)
		require.NoError(err)
		_, err = models.NewArticles(env.DB).CreateLocal(local, "Main Page", "hello")
		require.NoError(err)

		s := StartScheduler(context.Background(), env, time.Hour, time.Hour)
		defer s.Stop()

		stats, err := models.NewStats(env.DB).Read()
		require.NoError(err)
		require.EqualValues(1, stats.Users)
		require.EqualValues(1, stats.Articles)
		require.Zero(stats.Comments)
	})

	t.Run("ticks repeat until stopped", func(t *testing.T) {
		require := require.New(t)
		env := setupTestEnv(t)

		s := StartScheduler(context.Background(), env, 10*time.Millisecond, time.Minute)
		require.NoError(env.DB.Create(&models.SentActivity{
			ID:        "https://local.example/activity/1",
			Data:      "{}",
			Published: time.Now().Add(-time.Hour),
		}).Error)
		require.Eventually(func() bool {
			ok, err := models.NewSentActivities(env.DB).Exists("https://local.example/activity/1")
			return err == nil && !ok
		}, time.Second, 10*time.Millisecond)
		s.Stop()
	})
}

func setupTestEnv(t *testing.T) *models.Env {
	t.Helper()
	require := require.New(t)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	require.NoError(err)

	sqlDB, err := db.DB()
	require.NoError(err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(db.AutoMigrate(models.AllTables()...))
	return &models.Env{
		DB:     db,
		Logger: log.Discard(),
	}
}
