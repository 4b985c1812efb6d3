package activitypub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	intcrypto "github.com/davecheney/wiki/internal/crypto"
	"github.com/davecheney/wiki/internal/snowflake"
	"github.com/davecheney/wiki/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakePeer is a remote instance which serves hand written documents.
type fakePeer struct {
	*httptest.Server
	router chi.Router
	hits   atomic.Int32
	key    *intcrypto.Keypair
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	kp, err := intcrypto.GenerateRSAKeypair()
	require.NoError(t, err)
	p := &fakePeer{router: chi.NewRouter(), key: kp}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		p.router.ServeHTTP(w, r)
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *fakePeer) APID() string { return p.URL + "/" }

func (p *fakePeer) instanceJSON() map[string]any {
	return map[string]any{
		"type":     "Service",
		"id":       p.APID(),
		"name":     "peer",
		"inbox":    p.URL + "/inbox",
		"articles": p.URL + "/all_articles",
		"publicKey": map[string]any{
			"id":           p.APID() + "#main-key",
			"owner":        p.APID(),
			"publicKeyPem": string(p.key.PublicKey),
		},
	}
}

func (p *fakePeer) personJSON(name string) map[string]any {
	id := p.URL + "/user/" + name
	return map[string]any{
		"type":              "Person",
		"id":                id,
		"preferredUsername": name,
		"inbox":             p.URL + "/inbox",
		"publicKey": map[string]any{
			"id":           id + "#main-key",
			"owner":        id,
			"publicKeyPem": string(p.key.PublicKey),
		},
	}
}

func (p *fakePeer) articleJSON(title, text string, updated time.Time) map[string]any {
	return map[string]any{
		"type":          "Article",
		"id":            p.URL + "/article/" + title,
		"attributedTo":  p.APID(),
		"name":          title,
		"content":       text,
		"latestVersion": models.Version(text),
		"published":     updated.Add(-time.Hour).UTC().Format(time.RFC3339Nano),
		"updated":       updated.UTC().Format(time.RFC3339Nano),
	}
}

func TestResolver(t *testing.T) {
	t.Run("unknown person is fetched then read locally while fresh", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")
		peer := newFakePeer(t)
		peer.router.Get("/user/carol", serveJSON(peer.personJSON("carol")))

		person, err := env.Resolver().Person(context.Background(), peer.URL+"/user/carol")
		require.NoError(err)
		require.Equal("carol", person.Username)
		require.False(person.Local)
		require.EqualValues(1, peer.hits.Load())

		again, err := env.Resolver().Person(context.Background(), peer.URL+"/user/carol")
		require.NoError(err)
		require.Equal(person.ID, again.ID)
		require.EqualValues(1, peer.hits.Load())
	})

	t.Run("document claiming another id is rejected", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")
		peer := newFakePeer(t)
		peer.router.Get("/user/mallory", serveJSON(peer.personJSON("carol")))

		_, err := env.Resolver().Person(context.Background(), peer.URL+"/user/mallory")
		var re *ResolutionError
		require.True(errors.As(err, &re))
		require.Equal(peer.URL+"/user/mallory", re.ID)
		require.ErrorIs(err, ErrIdentityMismatch)

		_, err = models.NewPersons(env.DB).ReadByAPID(peer.URL + "/user/carol")
		require.ErrorIs(err, gorm.ErrRecordNotFound)
	})

	t.Run("stale row is returned when the refresh fails", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")
		peer := newFakePeer(t)
		var broken atomic.Bool
		peer.router.Get("/user/carol", func(w http.ResponseWriter, r *http.Request) {
			if broken.Load() {
				http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
				return
			}
			serveJSON(peer.personJSON("carol"))(w, r)
		})

		person, err := env.Resolver().Person(context.Background(), peer.URL+"/user/carol")
		require.NoError(err)
		_, err = models.NewPersons(env.DB).UpdateFields(person.ID, map[string]any{
			"last_refreshed_at": time.Now().Add(-2 * env.Federation.RefreshInterval),
		})
		require.NoError(err)

		broken.Store(true)
		stale, err := env.Resolver().Person(context.Background(), peer.URL+"/user/carol")
		require.NoError(err)
		require.Equal(person.ID, stale.ID)
		require.EqualValues(2, peer.hits.Load())
	})

	t.Run("fetches stop once the budget is spent", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")
		peer := newFakePeer(t)
		peer.router.Get("/user/carol", serveJSON(peer.personJSON("carol")))

		ctx := WithFetchBudget(context.Background(), 0)
		_, err := env.Resolver().Person(ctx, peer.URL+"/user/carol")
		require.ErrorIs(err, ErrFetchLimit)
		require.EqualValues(0, peer.hits.Load())
	})

	t.Run("unknown local identifiers are not fetched", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")

		_, err := env.Resolver().Person(context.Background(), "http://local.example/user/nobody")
		var re *ResolutionError
		require.True(errors.As(err, &re))
		require.ErrorIs(err, gorm.ErrRecordNotFound)
	})

	t.Run("actor resolves instances and persons", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")
		peer := newFakePeer(t)
		peer.router.Get("/", serveJSON(peer.instanceJSON()))
		peer.router.Get("/user/carol", serveJSON(peer.personJSON("carol")))

		id, pem, err := env.Resolver().Actor(context.Background(), peer.APID())
		require.NoError(err)
		require.Equal(peer.APID(), id)
		require.Equal(string(peer.key.PublicKey), pem)

		id, _, err = env.Resolver().Actor(context.Background(), peer.URL+"/user/carol")
		require.NoError(err)
		require.Equal(peer.URL+"/user/carol", id)

		instance, err := models.NewInstances(env.DB).ReadByAPID(peer.APID())
		require.NoError(err)
		require.Equal(peer.URL+"/inbox", instance.InboxURL)
	})

	t.Run("parent articles are fetched and stored", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")
		peer := newFakePeer(t)
		peer.router.Get("/", serveJSON(peer.instanceJSON()))
		peer.router.Get("/article/Main", serveJSON(peer.articleJSON("Main", "hello", time.Now())))

		parent, err := env.Resolver().ArticleOrComment(context.Background(), peer.URL+"/article/Main")
		require.NoError(err)
		require.NotNil(parent.Article)
		require.Nil(parent.Comment)
		require.Equal("hello", parent.Article.Text)
	})

	t.Run("handles are resolved with webfinger", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")
		peer := newFakePeer(t)
		host := peer.Listener.Addr().String()
		peer.router.Get("/user/carol", serveJSON(peer.personJSON("carol")))
		peer.router.Get("/.well-known/webfinger", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("resource") != "acct:carol@"+host {
				http.NotFound(w, r)
				return
			}
			serveJSON(map[string]any{
				"subject": "acct:carol@" + host,
				"links": []any{
					map[string]any{"rel": "self", "type": "application/activity+json", "href": peer.URL + "/user/carol"},
				},
			})(w, r)
		})

		person, err := env.ResolveAcct(context.Background(), "@carol@"+host)
		require.NoError(err)
		require.Equal(peer.URL+"/user/carol", person.APID)

		_, err = env.ResolveAcct(context.Background(), "dave@"+host)
		var re *ResolutionError
		require.True(errors.As(err, &re))
	})

	t.Run("concurrent resolutions share one fetch", func(t *testing.T) {
		require := require.New(t)
		env := newTestEnv(t, "local.example")
		peer := newFakePeer(t)
		release := make(chan struct{})
		peer.router.Get("/user/carol", func(w http.ResponseWriter, r *http.Request) {
			<-release
			serveJSON(peer.personJSON("carol"))(w, r)
		})

		const n = 8
		var wg sync.WaitGroup
		ids := make([]snowflake.ID, n)
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				person, err := env.Resolver().Person(context.Background(), peer.URL+"/user/carol")
				errs[i] = err
				if err == nil {
					ids[i] = person.ID
				}
			}()
		}
		require.Eventually(func() bool { return peer.hits.Load() == 1 }, 5*time.Second, time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		for i := range n {
			require.NoError(errs[i])
			require.Equal(ids[0], ids[i])
		}
		require.EqualValues(1, peer.hits.Load())
	})

	t.Run("cycles are detected", func(t *testing.T) {
		require := require.New(t)

		ctx, err := enter(context.Background(), "https://a.example/comment/1")
		require.NoError(err)
		ctx, err = enter(ctx, "https://a.example/comment/2")
		require.NoError(err)
		_, err = enter(ctx, "https://a.example/comment/1")
		require.ErrorIs(err, ErrCycle)
	})
}
