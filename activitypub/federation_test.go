package activitypub

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecheney/wiki/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// follow makes follower follow followed and returns followed as known by
// follower.
func follow(t *testing.T, follower, followed *testInstance) *models.Instance {
	t.Helper()
	require := require.New(t)
	_, err := follower.FollowInstance(context.Background(), followed.APID())
	require.NoError(err)
	followed.Wait()
	instance, err := models.NewInstances(follower.DB).ReadByAPID(followed.APID())
	require.NoError(err)
	return instance
}

func TestFederation(t *testing.T) {
	t.Run("follow is accepted", func(t *testing.T) {
		require := require.New(t)
		a, b := newTestInstance(t), newTestInstance(t)

		followedByB := follow(t, b, a)

		followers, err := models.NewInstances(a.DB).ReadFollowers(a.local(t).ID)
		require.NoError(err)
		require.Len(followers, 1)
		require.Equal(b.APID(), followers[0].APID)

		following, err := models.NewInstances(b.DB).ReadFollowing(b.local(t).ID)
		require.NoError(err)
		require.Len(following, 1)
		require.Equal(followedByB.ID, following[0].InstanceID)
		require.False(following[0].Pending)
	})

	t.Run("announced article is stored once", func(t *testing.T) {
		require := require.New(t)
		a, b := newTestInstance(t), newTestInstance(t)
		follow(t, b, a)

		article, err := models.NewArticles(a.DB).CreateLocal(a.local(t), "Main Page", "hello")
		require.NoError(err)
		require.NoError(a.PublishArticle(context.Background(), article))

		count := func() int64 {
			var n int64
			require.NoError(b.DB.Model(&models.Article{}).Where("ap_id = ?", article.APID).Count(&n).Error)
			return n
		}
		require.EqualValues(1, count())
		stored, err := models.NewArticles(b.DB).ReadByAPID(article.APID)
		require.NoError(err)
		require.Equal("Main Page", stored.Title)
		require.Equal("hello", stored.Text)
		require.False(stored.Local)
		require.Equal(a.APID(), stored.Instance.APID)

		// resending changes nothing but the row
		require.NoError(a.PublishArticle(context.Background(), article))
		require.EqualValues(1, count())
		again, err := models.NewArticles(b.DB).ReadByAPID(article.APID)
		require.NoError(err)
		require.Equal(stored.ID, again.ID)
		require.Equal(stored.Text, again.Text)

		edited, err := models.NewArticles(a.DB).Edit(article.ID, "hello world")
		require.NoError(err)
		require.NoError(a.PublishArticle(context.Background(), edited))
		require.EqualValues(1, count())
		again, err = models.NewArticles(b.DB).ReadByAPID(article.APID)
		require.NoError(err)
		require.Equal("hello world", again.Text)
		require.Equal(models.Version("hello world"), again.LatestVersion)
	})

	t.Run("following syncs the article collection", func(t *testing.T) {
		require := require.New(t)
		a, b := newTestInstance(t), newTestInstance(t)
		articles := models.NewArticles(a.DB)
		for _, title := range []string{"One", "Two"} {
			_, err := articles.CreateLocal(a.local(t), title, "text of "+title)
			require.NoError(err)
		}

		result, err := b.FollowInstance(context.Background(), a.APID())
		require.NoError(err)
		require.Equal(2, result.Applied)
		require.Empty(result.Failures)

		remote := false
		synced, err := models.NewArticles(b.DB).ReadAll(&remote, nil, false)
		require.NoError(err)
		require.Len(synced, 2)
	})

	t.Run("sync tolerates a malformed item", func(t *testing.T) {
		require := require.New(t)
		b := newTestInstance(t)
		peer := newFakePeer(t)

		update := func(name string, object map[string]any) map[string]any {
			return map[string]any{
				"id":     peer.URL + "/activity/update/" + name,
				"type":   "Update",
				"actor":  peer.APID(),
				"object": object,
			}
		}
		malformed := peer.articleJSON("Three", "three", time.Now())
		delete(malformed, "name")

		peer.router.Get("/", serveJSON(peer.instanceJSON()))
		peer.router.Post("/inbox", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		})
		peer.router.Get("/all_articles", serveJSON(map[string]any{
			"type": "Collection",
			"id":   peer.URL + "/all_articles",
			"items": []any{
				update("one", peer.articleJSON("One", "one", time.Now())),
				update("two", peer.articleJSON("Two", "two", time.Now())),
				update("three", malformed),
			},
		}))

		result, err := b.FollowInstance(context.Background(), peer.APID())
		require.NoError(err)
		require.Equal(2, result.Applied)
		require.Len(result.Failures, 1)
		require.Equal(peer.URL+"/activity/update/three", result.Failures[0].ID)

		remote := false
		synced, err := models.NewArticles(b.DB).ReadAll(&remote, nil, false)
		require.NoError(err)
		require.Len(synced, 2)

		following, err := models.NewInstances(b.DB).ReadFollowing(b.local(t).ID)
		require.NoError(err)
		require.Len(following, 1)
		require.True(following[0].Pending)
	})

	t.Run("comments federate through the article's instance", func(t *testing.T) {
		require := require.New(t)
		a, b := newTestInstance(t), newTestInstance(t)
		article, err := models.NewArticles(a.DB).CreateLocal(a.local(t), "Main Page", "hello")
		require.NoError(err)
		follow(t, b, a)

		alice := a.person(t, "alice")
		bob := b.person(t, "bob")

		onB, err := models.NewArticles(b.DB).ReadByAPID(article.APID)
		require.NoError(err)
		question, err := b.CreateComment(context.Background(), bob, onB, nil, "why?")
		require.NoError(err)

		views, err := models.NewComments(a.DB).ReadForArticle(article.ID)
		require.NoError(err)
		require.Len(views, 1)
		require.Equal("why?", views[0].Comment.Content)
		require.Equal(bob.APID, views[0].Creator.APID)

		atA, err := models.NewComments(a.DB).ReadByAPID(question.APID)
		require.NoError(err)
		answer, err := a.CreateComment(context.Background(), alice, article, atA, "because")
		require.NoError(err)

		reply, err := models.NewComments(b.DB).ReadByAPID(answer.APID)
		require.NoError(err)
		require.Equal("because", reply.Content)
		require.Equal(1, reply.Depth)
		require.NotNil(reply.ParentID)
		require.Equal(question.ID, *reply.ParentID)

		b.Wait()
		notifications, err := models.NewNotifications(b.DB).ReadForPerson(bob.ID)
		require.NoError(err)
		require.Len(notifications, 1)
		require.Equal(reply.ID, notifications[0].CommentID)

		_, err = b.DeleteComment(context.Background(), bob, question)
		require.NoError(err)
		views, err = models.NewComments(a.DB).ReadForArticle(article.ID)
		require.NoError(err)
		require.Len(views, 2)
		for _, v := range views {
			if v.Comment.APID == question.APID {
				require.True(v.Comment.Deleted)
				require.Empty(v.Comment.Content)
			}
		}
	})

	t.Run("unfollow removes the follower", func(t *testing.T) {
		require := require.New(t)
		a, b := newTestInstance(t), newTestInstance(t)
		followed := follow(t, b, a)

		require.NoError(b.UnfollowInstance(context.Background(), followed))

		followers, err := models.NewInstances(a.DB).ReadFollowers(a.local(t).ID)
		require.NoError(err)
		require.Empty(followers)
		following, err := models.NewInstances(b.DB).ReadFollowing(b.local(t).ID)
		require.NoError(err)
		require.Empty(following)
	})
}

func TestArticleActions(t *testing.T) {
	t.Run("protection is published", func(t *testing.T) {
		require := require.New(t)
		a, b := newTestInstance(t), newTestInstance(t)
		article, err := models.NewArticles(a.DB).CreateLocal(a.local(t), "Main Page", "hello")
		require.NoError(err)
		follow(t, b, a)

		protected, err := a.ProtectArticle(context.Background(), article, true)
		require.NoError(err)
		require.True(protected.Protected)

		onB, err := models.NewArticles(b.DB).ReadByAPID(article.APID)
		require.NoError(err)
		require.True(onB.Protected)
	})

	t.Run("restored article is published again", func(t *testing.T) {
		require := require.New(t)
		a, b := newTestInstance(t), newTestInstance(t)
		articles := models.NewArticles(a.DB)
		article, err := articles.CreateLocal(a.local(t), "Main Page", "hello")
		require.NoError(err)
		follow(t, b, a)

		removed, err := a.RemoveArticle(context.Background(), article, true)
		require.NoError(err)
		require.True(removed.Removed)
		_, err = articles.Edit(article.ID, "hello again")
		require.NoError(err)

		onB, err := models.NewArticles(b.DB).ReadByAPID(article.APID)
		require.NoError(err)
		require.Equal("hello", onB.Text)

		restored, err := a.RemoveArticle(context.Background(), article, false)
		require.NoError(err)
		require.False(restored.Removed)
		onB, err = models.NewArticles(b.DB).ReadByAPID(article.APID)
		require.NoError(err)
		require.Equal("hello again", onB.Text)
	})

	t.Run("fork copies a remote article", func(t *testing.T) {
		require := require.New(t)
		a, b := newTestInstance(t), newTestInstance(t)
		article, err := models.NewArticles(a.DB).CreateLocal(a.local(t), "Main Page", "hello")
		require.NoError(err)

		fork, err := b.ForkArticle(context.Background(), article.APID, "Copy")
		require.NoError(err)
		require.True(fork.Local)
		require.Equal("Copy", fork.Title)
		require.Equal("hello", fork.Text)

		_, err = b.ForkArticle(context.Background(), fork.APID, "Copy of copy")
		require.Error(err)
	})
}

func TestSlowFollower(t *testing.T) {
	require := require.New(t)
	a, b := newTestInstance(t), newTestInstance(t)
	article, err := models.NewArticles(a.DB).CreateLocal(a.local(t), "Main Page", "hello")
	require.NoError(err)
	follow(t, b, a)

	slow := newFakePeer(t)
	var delivered atomic.Int32
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	slow.router.Get("/", serveJSON(slow.instanceJSON()))
	slow.router.Post("/inbox", func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusAccepted)
	})
	follower, err := a.Resolver().Instance(context.Background(), slow.APID())
	require.NoError(err)
	require.NoError(models.NewInstances(a.DB).Follow(a.local(t), follower, false))

	onB, err := models.NewArticles(b.DB).ReadByAPID(article.APID)
	require.NoError(err)
	start := time.Now()
	_, err = b.CreateComment(context.Background(), b.person(t, "bob"), onB, nil, "why?")
	require.NoError(err)
	require.Less(time.Since(start), a.Federation.RequestTimeout)

	views, err := models.NewComments(a.DB).ReadForArticle(article.ID)
	require.NoError(err)
	require.Len(views, 1)
	require.Eventually(func() bool { return delivered.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestRelayedActivities(t *testing.T) {
	t.Run("comment relayed by the article's instance", func(t *testing.T) {
		require := require.New(t)
		a, b, c := newTestInstance(t), newTestInstance(t), newTestInstance(t)
		article, err := models.NewArticles(a.DB).CreateLocal(a.local(t), "Main Page", "hello")
		require.NoError(err)
		follow(t, b, a)
		follow(t, c, a)

		onC, err := models.NewArticles(c.DB).ReadByAPID(article.APID)
		require.NoError(err)
		comment, err := c.CreateComment(context.Background(), c.person(t, "carol"), onC, nil, "from c")
		require.NoError(err)
		a.Wait()

		onB, err := models.NewComments(b.DB).ReadByAPID(comment.APID)
		require.NoError(err)
		require.Equal("from c", onB.Content)
	})

	env := newTestEnv(t, "local.example")
	mallory := newFakePeer(t)
	victim := newFakePeer(t)
	victim.router.Get("/", serveJSON(victim.instanceJSON()))
	victim.router.Get("/user/carol", serveJSON(victim.personJSON("carol")))
	article, err := models.NewArticles(env.DB).CreateLocal(func() *models.Instance {
		local, err := env.LocalInstance()
		require.NoError(t, err)
		return local
	}(), "Main Page", "hello")
	require.NoError(t, err)

	relay := func(inner Activity) *Announce {
		return &Announce{
			base:   base{id: mallory.URL + "/activity/" + uuid.NewString(), actor: mallory.APID()},
			Object: inner,
		}
	}
	noteBy := func(id, text string) *NoteObject {
		return &NoteObject{
			ID:           id,
			AttributedTo: victim.URL + "/user/carol",
			InReplyTo:    article.APID,
			Content:      text,
			Source:       text,
			Published:    time.Now(),
		}
	}

	t.Run("relayed article update is taken from its origin", func(t *testing.T) {
		require := require.New(t)
		victim.router.Get("/article/Origin", serveJSON(victim.articleJSON("Origin", "origin text", time.Now())))
		forged := victim.articleJSON("Origin", "forged text", time.Now())
		obj, err := parseArticle(forged)
		require.NoError(err)
		update := &UpdateArticle{
			base:   base{id: victim.URL + "/activity/" + uuid.NewString(), actor: victim.APID()},
			Kind:   "Update",
			Object: obj,
		}

		require.NoError(env.ReceiveActivity(context.Background(), relay(update)))
		stored, err := models.NewArticles(env.DB).ReadByAPID(victim.URL + "/article/Origin")
		require.NoError(err)
		require.Equal("origin text", stored.Text)
	})

	t.Run("relayed comment unknown to its origin is rejected", func(t *testing.T) {
		require := require.New(t)
		note := noteBy(victim.URL+"/comment/404", "forged")
		create := &CreateOrUpdateComment{
			base:   base{id: victim.URL + "/activity/" + uuid.NewString(), actor: note.AttributedTo},
			Kind:   "Create",
			Object: note,
		}

		err := env.ReceiveActivity(context.Background(), relay(create))
		var ve *VerificationError
		require.True(errors.As(err, &ve))
		require.ErrorIs(err, ErrNotConfirmed)
		_, err = models.NewComments(env.DB).ReadByAPID(note.ID)
		require.ErrorIs(err, gorm.ErrRecordNotFound)
	})

	t.Run("relayed comment is stored as its origin serves it", func(t *testing.T) {
		require := require.New(t)
		note := noteBy(victim.URL+"/comment/1", "original")
		victim.router.Get("/comment/1", serveJSON(note.JSON()))
		create := &CreateOrUpdateComment{
			base:   base{id: victim.URL + "/activity/" + uuid.NewString(), actor: note.AttributedTo},
			Kind:   "Create",
			Object: noteBy(note.ID, "rewritten"),
		}

		require.NoError(env.ReceiveActivity(context.Background(), relay(create)))
		stored, err := models.NewComments(env.DB).ReadByAPID(note.ID)
		require.NoError(err)
		require.Equal("original", stored.Content)
	})

	t.Run("relayed delete of a live comment is rejected", func(t *testing.T) {
		require := require.New(t)
		del := &DeleteComment{
			base:   base{id: victim.URL + "/activity/" + uuid.NewString(), actor: victim.URL + "/user/carol"},
			Object: victim.URL + "/comment/1",
		}
		err := env.ReceiveActivity(context.Background(), relay(del))
		require.ErrorIs(err, ErrNotConfirmed)

		stored, err := models.NewComments(env.DB).ReadByAPID(victim.URL + "/comment/1")
		require.NoError(err)
		require.False(stored.Deleted)
	})

	t.Run("relayed delete of a vanished comment is applied", func(t *testing.T) {
		require := require.New(t)
		del := &DeleteComment{
			base:   base{id: victim.URL + "/activity/" + uuid.NewString(), actor: victim.URL + "/user/carol"},
			Object: victim.URL + "/comment/404",
		}
		require.NoError(env.ReceiveActivity(context.Background(), relay(del)))
	})
}
