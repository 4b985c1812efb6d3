package activitypub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davecheney/wiki/models"
	"gorm.io/gorm"
)

// Resolver turns remote identifiers into local rows, fetching them from
// their origin when they are unknown or stale.
type Resolver struct {
	env *Env
}

// Instance resolves the instance with the given ap_id.
func (r *Resolver) Instance(ctx context.Context, apID string) (*models.Instance, error) {
	instances := models.NewInstances(r.env.DB)
	return resolve(ctx, r, "instance", apID, instances.ReadByAPID,
		func(i *models.Instance) bool { return i.Local || r.fresh(i.LastRefreshedAt) },
		func(ctx context.Context, obj map[string]any) (*models.Instance, error) {
			inst, err := parseInstance(obj)
			if err != nil {
				return nil, err
			}
			row, err := inst.row()
			if err != nil {
				return nil, err
			}
			return instances.Upsert(row)
		})
}

// Person resolves the person with the given ap_id.
func (r *Resolver) Person(ctx context.Context, apID string) (*models.Person, error) {
	persons := models.NewPersons(r.env.DB)
	return resolve(ctx, r, "person", apID, persons.ReadByAPID,
		func(p *models.Person) bool { return p.Local || r.fresh(p.LastRefreshedAt) },
		func(ctx context.Context, obj map[string]any) (*models.Person, error) {
			person, err := parsePerson(obj)
			if err != nil {
				return nil, err
			}
			return persons.Upsert(person.row())
		})
}

// Article resolves the article with the given ap_id.
func (r *Resolver) Article(ctx context.Context, apID string) (*models.Article, error) {
	articles := models.NewArticles(r.env.DB)
	return resolve(ctx, r, "article", apID, articles.ReadByAPID, always[models.Article],
		func(ctx context.Context, obj map[string]any) (*models.Article, error) {
			article, err := parseArticle(obj)
			if err != nil {
				return nil, err
			}
			return r.env.storeArticle(ctx, article)
		})
}

// Comment resolves the comment with the given ap_id.
func (r *Resolver) Comment(ctx context.Context, apID string) (*models.Comment, error) {
	comments := models.NewComments(r.env.DB)
	return resolve(ctx, r, "comment", apID, comments.ReadByAPID, always[models.Comment],
		func(ctx context.Context, obj map[string]any) (*models.Comment, error) {
			note, err := parseNote(obj)
			if err != nil {
				return nil, err
			}
			return r.env.storeComment(ctx, note)
		})
}

// ArticleOrComment is the parent of a comment; exactly one field is set.
type ArticleOrComment struct {
	Article *models.Article
	Comment *models.Comment
}

// ArticleOrComment resolves an identifier that names either an article or
// a comment.
func (r *Resolver) ArticleOrComment(ctx context.Context, apID string) (*ArticleOrComment, error) {
	if article, err := models.NewArticles(r.env.DB).ReadByAPID(apID); err == nil {
		return &ArticleOrComment{Article: article}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if comment, err := models.NewComments(r.env.DB).ReadByAPID(apID); err == nil {
		return &ArticleOrComment{Comment: comment}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if r.env.IsLocal(apID) {
		return nil, &ResolutionError{ID: apID, Err: gorm.ErrRecordNotFound}
	}
	ctx, err := enter(ctx, apID)
	if err != nil {
		return nil, resolutionError(apID, err)
	}
	v, err := r.do(ctx, "parent "+apID, func() (any, error) {
		obj, err := r.fetch(ctx, apID)
		if err != nil {
			return nil, err
		}
		switch t := stringFromAny(obj["type"]); t {
		case "Article":
			article, err := parseArticle(obj)
			if err != nil {
				return nil, err
			}
			stored, err := r.env.storeArticle(ctx, article)
			return &ArticleOrComment{Article: stored}, err
		case "Note":
			note, err := parseNote(obj)
			if err != nil {
				return nil, err
			}
			stored, err := r.env.storeComment(ctx, note)
			return &ArticleOrComment{Comment: stored}, err
		default:
			return nil, fmt.Errorf("%w: %q is neither article nor comment", ErrUnsupported, t)
		}
	})
	if err != nil {
		return nil, resolutionError(apID, err)
	}
	return v.(*ArticleOrComment), nil
}

// Actor resolves the instance or person which owns a key.
func (r *Resolver) Actor(ctx context.Context, apID string) (id string, publicKeyPEM string, err error) {
	if instance, err := models.NewInstances(r.env.DB).ReadByAPID(apID); err == nil {
		return instance.APID, instance.PublicKey, nil
	}
	if person, err := models.NewPersons(r.env.DB).ReadByAPID(apID); err == nil {
		return person.APID, person.PublicKey, nil
	}
	if r.env.IsLocal(apID) {
		return "", "", &ResolutionError{ID: apID, Err: gorm.ErrRecordNotFound}
	}
	v, err := r.do(ctx, "actor "+apID, func() (any, error) {
		obj, err := r.fetch(ctx, apID)
		if err != nil {
			return nil, err
		}
		switch t := stringFromAny(obj["type"]); t {
		case "Service":
			inst, err := parseInstance(obj)
			if err != nil {
				return nil, err
			}
			row, err := inst.row()
			if err != nil {
				return nil, err
			}
			stored, err := models.NewInstances(r.env.DB).Upsert(row)
			if err != nil {
				return nil, err
			}
			return [2]string{stored.APID, stored.PublicKey}, nil
		case "Person":
			person, err := parsePerson(obj)
			if err != nil {
				return nil, err
			}
			stored, err := models.NewPersons(r.env.DB).Upsert(person.row())
			if err != nil {
				return nil, err
			}
			return [2]string{stored.APID, stored.PublicKey}, nil
		default:
			return nil, fmt.Errorf("%w: actor of type %q", ErrUnsupported, t)
		}
	})
	if err != nil {
		return "", "", resolutionError(apID, err)
	}
	actor := v.([2]string)
	return actor[0], actor[1], nil
}

// do collapses concurrent calls with the same key into one.
func (r *Resolver) do(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	select {
	case res := <-r.env.fetches.DoChan(key, fn):
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) fresh(lastRefreshed time.Time) bool {
	return time.Since(lastRefreshed) < r.env.Federation.RefreshInterval
}

func always[T any](*T) bool { return true }

// resolve returns the row for apID, reading it locally when it is fresh
// and fetching it otherwise. A stale row whose refresh fails is returned
// as is.
func resolve[T any](
	ctx context.Context,
	r *Resolver,
	kind string,
	apID string,
	read func(string) (*T, error),
	fresh func(*T) bool,
	store func(context.Context, map[string]any) (*T, error),
) (*T, error) {
	cached, err := read(apID)
	switch {
	case err == nil:
		if fresh(cached) {
			return cached, nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		cached = nil
	default:
		return nil, err
	}
	if r.env.IsLocal(apID) {
		if cached != nil {
			return cached, nil
		}
		return nil, &ResolutionError{ID: apID, Err: gorm.ErrRecordNotFound}
	}
	ctx, err = enter(ctx, apID)
	if err != nil {
		return nil, resolutionError(apID, err)
	}
	v, err := r.do(ctx, kind+" "+apID, func() (any, error) {
		obj, err := r.fetch(ctx, apID)
		if err != nil {
			return nil, err
		}
		return store(ctx, obj)
	})
	if err != nil {
		if cached != nil {
			r.env.Log().Warn("refresh failed, using stored copy", "id", apID, "error", err)
			return cached, nil
		}
		return nil, resolutionError(apID, err)
	}
	return v.(*T), nil
}

// fetch retrieves the document for apID, signed as the local instance, and
// checks that it claims to be apID.
func (r *Resolver) fetch(ctx context.Context, apID string) (map[string]any, error) {
	if _, err := domainOf(apID); err != nil {
		return nil, err
	}
	if err := spendFetch(ctx); err != nil {
		return nil, err
	}
	client, err := r.env.instanceClient()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.env.Federation.RequestTimeout)
	defer cancel()
	obj, err := client.Fetch(ctx, apID)
	if err != nil {
		return nil, err
	}
	if id := stringFromAny(obj["id"]); !sameIdentity(id, apID) {
		return nil, fmt.Errorf("%w: fetched %s, got %q", ErrIdentityMismatch, apID, id)
	}
	return obj, nil
}

// resolutionError wraps err unless it is already a ResolutionError.
func resolutionError(apID string, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return err
	}
	return &ResolutionError{ID: apID, Err: err}
}

type resolvingKey struct{}

type resolving struct {
	apID string
	next *resolving
}

// enter records that apID is being resolved by ctx.
func enter(ctx context.Context, apID string) (context.Context, error) {
	head, _ := ctx.Value(resolvingKey{}).(*resolving)
	for r := head; r != nil; r = r.next {
		if r.apID == apID {
			return ctx, ErrCycle
		}
	}
	return context.WithValue(ctx, resolvingKey{}, &resolving{apID: apID, next: head}), nil
}
