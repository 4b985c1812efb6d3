package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/davecheney/wiki/activitypub"
	"github.com/davecheney/wiki/internal/group"
	"github.com/davecheney/wiki/wellknown"
	"github.com/davecheney/wiki/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ServeCmd struct {
	Addr string `help:"address to listen" default:":8080"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := ctx.newEnv(sigCtx)
	if err != nil {
		return err
	}
	if _, err := env.LocalInstance(); err != nil {
		return errors.New("no local instance, run create-instance first")
	}
	defer env.Wait()

	r := routes(env)
	walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		route = strings.Replace(route, "/*/", "/", -1)
		env.Log().Debug("route", "method", method, "path", route)
		return nil
	}
	if err := chi.Walk(r, walkFunc); err != nil {
		env.Log().Error("walk routes", "error", err)
	}

	scheduler := workers.StartScheduler(sigCtx, env.Env, env.Federation.SchedulerInterval, env.Federation.RetentionWindow)
	defer scheduler.Stop()

	svr := &http.Server{
		Addr:         s.Addr,
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	g := group.New(sigCtx)
	g.AddContext(func(ctx context.Context) error {
		env.Log().Info("http server listening", "addr", s.Addr, "domain", env.Federation.Domain)
		if err := svr.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.AddContext(func(ctx context.Context) error {
		<-ctx.Done()
		env.Log().Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return svr.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func routes(env *activitypub.Env) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	activitypub.Routes(r, env)
	wellknown.Routes(r, env)

	r.Get("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "User-agent: *\nDisallow: /")
	})
	return r
}
