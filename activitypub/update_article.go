package activitypub

import (
	"context"
	"errors"
	"fmt"

	"github.com/davecheney/wiki/models"
	"gorm.io/gorm"
)

// UpdateArticle is a Create or Update of an Article by the instance which
// owns it.
type UpdateArticle struct {
	base
	Kind   string
	Object *ArticleObject
}

func (u *UpdateArticle) Verify(ctx context.Context, env *Env) error {
	if err := u.verifyActor(); err != nil {
		return err
	}
	if err := verifyDomainsMatch(u.Object.ID, u.actor); err != nil {
		return err
	}
	if u.Object.AttributedTo != u.actor {
		return fmt.Errorf("article %s is attributed to %s, not %s", u.Object.ID, u.Object.AttributedTo, u.actor)
	}
	return env.verifyIsRemote(u.Object.ID)
}

func (u *UpdateArticle) Receive(ctx context.Context, env *Env) error {
	_, err := env.storeArticle(ctx, u.Object)
	return err
}

func (u *UpdateArticle) JSON() map[string]any {
	return envelopeJSON(&u.base, u.Kind, u.Object.JSON(), []any{PublicCollection})
}

// storeArticle upserts a remote article under the instance it is attributed to.
// An update older than the stored copy is ignored.
func (e *Env) storeArticle(ctx context.Context, obj *ArticleObject) (*models.Article, error) {
	if err := e.verifyIsRemote(obj.ID); err != nil {
		return nil, err
	}
	instance, err := e.Resolver().Instance(ctx, obj.AttributedTo)
	if err != nil {
		return nil, err
	}
	articles := models.NewArticles(e.DB)
	existing, err := articles.ReadByAPID(obj.ID)
	switch {
	case err == nil:
		if obj.Updated.Before(existing.Updated) {
			e.Log().Info("ignoring stale article update", "id", obj.ID, "updated", obj.Updated, "stored", existing.Updated)
			return existing, nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, err
	}
	return articles.Upsert(&models.Article{
		Title:         obj.Name,
		Text:          obj.Content,
		LatestVersion: obj.LatestVersion,
		APID:          obj.ID,
		InstanceID:    instance.ID,
		Protected:     obj.Protected,
		Published:     obj.Published,
		Updated:       obj.Updated,
	})
}
