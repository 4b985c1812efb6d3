// Package models contains the persistent state of a wiki instance and the
// stores that read and write it. All writes that originate from the
// network are upserts keyed by the ap_id of the object.
package models

import (
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"gorm.io/gorm"
)

var (
	// ErrMaxDepthExceeded is returned when a comment would be nested
	// deeper than the configured maximum.
	ErrMaxDepthExceeded = errors.New("max comment depth exceeded")

	// ErrParentMismatch is returned when a comment's parent belongs to a
	// different article.
	ErrParentMismatch = errors.New("parent comment belongs to a different article")

	// ErrInvalidInboxURL is returned when an inbox url is not absolute.
	ErrInvalidInboxURL = errors.New("invalid inbox url")

	// ErrLocalInstanceExists is returned when a second local instance is created.
	ErrLocalInstanceExists = errors.New("local instance already exists")
)

type Env struct {
	// DB is the database connection.
	DB     *gorm.DB
	Logger *slog.Logger

	// side effects dispatched by the stores.
	pending sync.WaitGroup
}

func (e *Env) Log() *slog.Logger {
	return e.Logger
}

// Go runs fn on a new goroutine. Use Wait to join outstanding calls.
func (e *Env) Go(fn func()) {
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		fn()
	}()
}

// Wait blocks until every function passed to Go has returned.
func (e *Env) Wait() {
	e.pending.Wait()
}

// AllTables returns a slice of all tables in the database.
func AllTables() []interface{} {
	return []interface{}{
		&Instance{}, &InstanceFollow{},
		&Person{},
		&Article{},
		&Comment{},
		&Notification{},
		&SentActivity{},
		&InstanceStats{},
	}
}

// forEach runs each function in turn, returning the first error.
func forEach(tx *gorm.DB, fns ...func(tx *gorm.DB) error) error {
	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return err
		}
	}
	return nil
}

// validURL reports whether s is an absolute url.
func validURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
