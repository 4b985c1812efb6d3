package activitypub

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/davecheney/wiki/internal/httpx"
	"github.com/davecheney/wiki/internal/snowflake"
	"github.com/davecheney/wiki/internal/to"
	"github.com/davecheney/wiki/models"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// Routes registers the federation endpoints of env on r.
func Routes(r chi.Router, env *Env) {
	r.Get("/", httpx.HandlerFunc(env, InstanceShow))
	r.Post("/inbox", httpx.HandlerFunc(env, InboxCreate))
	r.Get("/all_articles", httpx.HandlerFunc(env, ArticlesIndex))
	r.Get("/followers", httpx.HandlerFunc(env, FollowersShow))
	r.Get("/article/{title}", httpx.HandlerFunc(env, ArticleShow))
	r.Get("/comment/{id:[0-9]+}", httpx.HandlerFunc(env, CommentShow))
	r.Get("/user/{name}", httpx.HandlerFunc(env, UserShow))
}

// InstanceShow serves the local instance's actor document.
func InstanceShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	local, err := env.LocalInstance()
	if err != nil {
		return notFound(err)
	}
	return to.Activity(w, instanceObject(local).JSON())
}

func ArticlesIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	collection, err := env.ReadLocalArticles(r.Context())
	if err != nil {
		return notFound(err)
	}
	return to.Activity(w, collection)
}

// FollowersShow serves the size of the local instance's followers
// collection. Members are not listed.
func FollowersShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	local, err := env.LocalInstance()
	if err != nil {
		return notFound(err)
	}
	followers, err := models.NewInstances(env.DB).ReadFollowers(local.ID)
	if err != nil {
		return err
	}
	return to.Activity(w, map[string]any{
		"@context":   activityStreamsContext,
		"type":       "Collection",
		"id":         local.APID + "followers",
		"totalItems": len(followers),
	})
}

func ArticleShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	title, err := url.PathUnescape(chi.URLParam(r, "title"))
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	article, err := models.NewArticles(env.DB).ReadLocalByTitle(title)
	if err != nil {
		return notFound(err)
	}
	if article.Removed {
		return httpx.Error(http.StatusGone, errors.New("article removed"))
	}
	obj := articleObject(article).JSON()
	obj["@context"] = activityStreamsContext
	return to.Activity(w, obj)
}

// CommentShow serves a local comment. Deleted comments are served with
// their content removed.
func CommentShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	id, err := snowflake.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	comment, err := models.NewComments(env.DB).Read(id)
	if err != nil {
		return notFound(err)
	}
	if !comment.Local {
		return httpx.Error(http.StatusNotFound, errors.New("comment not found"))
	}
	note, err := env.noteOf(comment)
	if err != nil {
		return err
	}
	obj := note.JSON()
	obj["@context"] = activityStreamsContext
	return to.Activity(w, obj)
}

func UserShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	person, err := models.NewPersons(env.DB).ReadLocal(chi.URLParam(r, "name"))
	if err != nil {
		return notFound(err)
	}
	return to.Activity(w, personObject(person).JSON())
}

// notFound maps a missing row to a 404.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.Error(http.StatusNotFound, err)
	}
	return err
}
