package activitypub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/davecheney/wiki/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
)

func TestRoutes(t *testing.T) {
	env := newTestEnv(t, "local.example")
	r := chi.NewRouter()
	Routes(r, env)

	local, err := env.LocalInstance()
	require.NoError(t, err)
	alice, err := models.NewPersons(env.DB).CreateLocal(local, "alice", true)
	require.NoError(t, err)
	articles := models.NewArticles(env.DB)
	page, err := articles.CreateLocal(local, "Main Page", "hello")
	require.NoError(t, err)
	old, err := articles.CreateLocal(local, "Old", "gone")
	require.NoError(t, err)
	_, err = articles.Remove(old.ID, true)
	require.NoError(t, err)

	get := func(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
		t.Helper()
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec, body
	}

	t.Run("instance", func(t *testing.T) {
		require := require.New(t)
		rec, body := get(t, "/")
		require.Equal(http.StatusOK, rec.Code)
		require.Equal("application/activity+json", rec.Header().Get("Content-Type"))
		require.Equal("Service", body["type"])
		require.Equal(local.APID, body["id"])
		require.Equal(local.InboxURL, body["inbox"])
		require.Equal(local.ArticlesURL, body["articles"])
	})

	t.Run("person", func(t *testing.T) {
		require := require.New(t)
		rec, body := get(t, "/user/alice")
		require.Equal(http.StatusOK, rec.Code)
		require.Equal(alice.APID, body["id"])
		require.Equal("alice", body["preferredUsername"])

		rec, _ = get(t, "/user/nobody")
		require.Equal(http.StatusNotFound, rec.Code)
	})

	t.Run("article", func(t *testing.T) {
		require := require.New(t)
		rec, body := get(t, "/article/Main%20Page")
		require.Equal(http.StatusOK, rec.Code)
		require.Equal(page.APID, body["id"])
		require.Equal("hello", body["content"])
		require.Equal(local.APID, body["attributedTo"])

		rec, _ = get(t, "/article/Old")
		require.Equal(http.StatusGone, rec.Code)

		rec, _ = get(t, "/article/Missing")
		require.Equal(http.StatusNotFound, rec.Code)
	})

	t.Run("articles collection omits removed articles", func(t *testing.T) {
		require := require.New(t)
		rec, body := get(t, "/all_articles")
		require.Equal(http.StatusOK, rec.Code)
		require.Equal(local.ArticlesURL, body["id"])
		require.EqualValues(1, body["totalItems"])
		items := anyToSlice(body["items"])
		require.Len(items, 1)
		update := mapFromAny(items[0])
		require.Equal("Update", update["type"])
		require.Equal(page.APID, mapFromAny(update["object"])["id"])
	})

	t.Run("followers", func(t *testing.T) {
		require := require.New(t)
		rec, body := get(t, "/followers")
		require.Equal(http.StatusOK, rec.Code)
		require.EqualValues(0, body["totalItems"])
		require.NotContains(body, "items")
	})

	t.Run("deleted comment is served without content", func(t *testing.T) {
		require := require.New(t)
		comment, err := env.CreateComment(context.Background(), alice, page, nil, "*secret*")
		require.NoError(err)

		rec, body := get(t, "/comment/"+comment.ID.String())
		require.Equal(http.StatusOK, rec.Code)
		require.Equal("Note", body["type"])
		require.Equal(page.APID, body["inReplyTo"])
		require.Contains(body["content"], "<em>secret</em>")

		_, err = env.DeleteComment(context.Background(), alice, comment)
		require.NoError(err)
		rec, body = get(t, "/comment/"+comment.ID.String())
		require.Equal(http.StatusOK, rec.Code)
		require.Empty(body["content"])
		require.Empty(mapFromAny(body["source"])["content"])
	})

	t.Run("unsigned activities are refused", func(t *testing.T) {
		require := require.New(t)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader(`{"id":"https://b.example/1"}`))
		req.Header.Set("Content-Type", "application/activity+json")
		r.ServeHTTP(rec, req)
		require.Equal(http.StatusUnauthorized, rec.Code)

		rec = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader(`id=1`))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.ServeHTTP(rec, req)
		require.Equal(http.StatusUnsupportedMediaType, rec.Code)
	})
}
