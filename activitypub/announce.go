package activitypub

import (
	"context"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/davecheney/wiki/internal/algorithms"
	"github.com/davecheney/wiki/models"
)

// Announce is an instance relaying an activity to its followers. An
// activity by another instance's actor is only applied in the form its
// origin serves.
type Announce struct {
	base
	Object Activity
}

func (a *Announce) Verify(ctx context.Context, env *Env) error {
	if err := a.verifyActor(); err != nil {
		return err
	}
	if a.echo(env) {
		return nil
	}
	if err := a.Object.Verify(ctx, env); err != nil {
		return verificationError(a.Object.ID(), err)
	}
	if verifyDomainsMatch(a.actor, a.Object.Actor()) == nil {
		return nil
	}
	if err := a.confirm(ctx, env); err != nil {
		return verificationError(a.Object.ID(), err)
	}
	return nil
}

// confirm replaces the object of an activity relayed from another
// instance with the copy served by the object's origin.
func (a *Announce) confirm(ctx context.Context, env *Env) error {
	switch o := a.Object.(type) {
	case *UpdateArticle:
		obj, err := env.Resolver().fetch(ctx, o.Object.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotConfirmed, err)
		}
		article, err := parseArticle(obj)
		if err != nil {
			return err
		}
		o.Object = article
		return o.Verify(ctx, env)
	case *CreateOrUpdateComment:
		obj, err := env.Resolver().fetch(ctx, o.Object.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotConfirmed, err)
		}
		note, err := parseNote(obj)
		if err != nil {
			return err
		}
		o.Object = note
		return o.Verify(ctx, env)
	case *DeleteComment:
		obj, err := env.Resolver().fetch(ctx, o.Object)
		if requests.HasStatusErr(err, http.StatusNotFound, http.StatusGone) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotConfirmed, err)
		}
		if note, err := parseNote(obj); err == nil && note.Source == "" {
			return nil
		}
		return fmt.Errorf("%w: %s is still served by its origin", ErrNotConfirmed, o.Object)
	default:
		return fmt.Errorf("%w: relayed %T", ErrUnsupported, a.Object)
	}
}

// Receive applies the wrapped activity, unless it originated here.
func (a *Announce) Receive(ctx context.Context, env *Env) error {
	if a.echo(env) {
		env.Log().Debug("ignoring announce of local activity", "id", a.id, "object", a.Object.ID())
		return nil
	}
	return a.Object.Receive(ctx, env)
}

func (a *Announce) echo(env *Env) bool {
	return env.IsLocal(a.Object.ID())
}

func (a *Announce) JSON() map[string]any {
	return envelopeJSON(&a.base, "Announce", a.Object.JSON(), []any{a.actor + "followers"})
}

// announce relays activity to every follower of the local instance.
func (e *Env) announce(ctx context.Context, activity Activity) error {
	local, err := e.LocalInstance()
	if err != nil {
		return err
	}
	followers, err := models.NewInstances(e.DB).ReadFollowers(local.ID)
	if err != nil {
		return fmt.Errorf("followers: %w", err)
	}
	if len(followers) == 0 {
		return nil
	}
	client, err := e.instanceClient()
	if err != nil {
		return err
	}
	announce := &Announce{
		base:   base{id: e.newActivityID(), actor: local.APID},
		Object: activity,
	}
	inboxes := algorithms.Uniq(algorithms.Map(followers, func(i models.Instance) string { return i.InboxURL }))
	e.Send(ctx, client, announce, inboxes)
	return nil
}
