// Package wellknown serves the discovery documents of an instance.
package wellknown

import (
	"github.com/davecheney/wiki/activitypub"
	"github.com/davecheney/wiki/internal/httpx"
	"github.com/go-chi/chi/v5"
)

// Routes registers the discovery endpoints of env on r.
func Routes(r chi.Router, env *activitypub.Env) {
	r.Route("/.well-known", func(r chi.Router) {
		r.Get("/webfinger", httpx.HandlerFunc(env, WebfingerShow))
		r.Get("/host-meta", httpx.HandlerFunc(env, HostMetaIndex))
		r.Get("/nodeinfo", httpx.HandlerFunc(env, NodeInfoIndex))
	})
	r.Get("/nodeinfo/{version}", httpx.HandlerFunc(env, NodeInfoShow))
}

// baseURL returns the scheme and host of the local instance.
func baseURL(env *activitypub.Env) string {
	return env.Federation.Scheme() + "://" + env.Federation.Domain
}
