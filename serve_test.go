package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/davecheney/wiki/activitypub"
	"github.com/davecheney/wiki/internal/config"
	"github.com/davecheney/wiki/internal/log"
	"github.com/davecheney/wiki/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRoutes(t *testing.T) {
	r := routes(setupTestEnv(t))
	for path, code := range map[string]int{
		"/robots.txt":            http.StatusOK,
		"/":                      http.StatusOK,
		"/all_articles":          http.StatusOK,
		"/.well-known/nodeinfo":  http.StatusOK,
		"/.well-known/host-meta": http.StatusOK,
		"/article/Missing":       http.StatusNotFound,
	} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, code, rec.Code, rec.Body.String())
		})
	}
}

func setupTestEnv(t *testing.T) *activitypub.Env {
	t.Helper()
	require := require.New(t)
	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(err)
	sqlDB, err := db.DB()
	require.NoError(err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(db.AutoMigrate(models.AllTables()...))

	cfg := config.Default()
	cfg.Federation.Domain = "wiki.example"
	env, err := activitypub.NewEnv(&models.Env{DB: db, Logger: log.Discard()}, cfg)
	require.NoError(err)
	_, err = models.NewInstances(db).CreateLocal(cfg.Federation.Scheme(), cfg.Federation.Domain, nil)
	require.NoError(err)
	return env
}
