package activitypub

import (
	"context"
	"fmt"

	"github.com/davecheney/wiki/models"
)

// Follow is a request by an instance to receive another instance's activities.
type Follow struct {
	base
	// Object is the ap_id of the followed instance.
	Object string
}

func (f *Follow) Verify(ctx context.Context, env *Env) error {
	if err := f.verifyActor(); err != nil {
		return err
	}
	if !env.IsLocal(f.Object) {
		return fmt.Errorf("%w: follow of %s is not for this instance", ErrDomainMismatch, f.Object)
	}
	return nil
}

// Receive records the follower and replies with an Accept once the
// Follow has been acknowledged.
func (f *Follow) Receive(ctx context.Context, env *Env) error {
	local, err := env.LocalInstance()
	if err != nil {
		return err
	}
	if !sameIdentity(f.Object, local.APID) {
		return fmt.Errorf("follow of unknown object %s", f.Object)
	}
	follower, err := env.Resolver().Instance(ctx, f.actor)
	if err != nil {
		return err
	}
	if err := models.NewInstances(env.DB).Follow(local, follower, false); err != nil {
		return err
	}
	accept := &Accept{
		base:   base{id: env.newActivityID(), actor: local.APID},
		Object: f,
	}
	env.dispatch(ctx, "accept follow", f.id, func(ctx context.Context) error {
		client, err := env.instanceClient()
		if err != nil {
			return err
		}
		env.Send(ctx, client, accept, []string{follower.InboxURL})
		return nil
	})
	return nil
}

func (f *Follow) JSON() map[string]any {
	return envelopeJSON(&f.base, "Follow", f.Object, nil)
}

// Accept is the reply of a followed instance to a Follow.
type Accept struct {
	base
	Object *Follow
}

func (a *Accept) Verify(ctx context.Context, env *Env) error {
	if err := a.verifyActor(); err != nil {
		return err
	}
	if !sameIdentity(a.Object.Object, a.actor) {
		return fmt.Errorf("%w: %s accepted a follow of %s", ErrDomainMismatch, a.actor, a.Object.Object)
	}
	if !env.IsLocal(a.Object.actor) {
		return fmt.Errorf("%w: accepted follow was not sent by this instance", ErrDomainMismatch)
	}
	return nil
}

// Receive marks the pending follow accepted.
func (a *Accept) Receive(ctx context.Context, env *Env) error {
	local, err := env.LocalInstance()
	if err != nil {
		return err
	}
	followed, err := env.Resolver().Instance(ctx, a.actor)
	if err != nil {
		return err
	}
	return models.NewInstances(env.DB).AcceptFollow(followed, local)
}

func (a *Accept) JSON() map[string]any {
	return envelopeJSON(&a.base, "Accept", a.Object.JSON(), nil)
}

// Undo withdraws a Follow.
type Undo struct {
	base
	Object *Follow
}

func (u *Undo) Verify(ctx context.Context, env *Env) error {
	if err := u.verifyActor(); err != nil {
		return err
	}
	if u.Object.actor != u.actor {
		return fmt.Errorf("%w: %s cannot undo a follow by %s", ErrDomainMismatch, u.actor, u.Object.actor)
	}
	if !env.IsLocal(u.Object.Object) {
		return fmt.Errorf("%w: undone follow is not for this instance", ErrDomainMismatch)
	}
	return nil
}

// Receive removes the follower.
func (u *Undo) Receive(ctx context.Context, env *Env) error {
	local, err := env.LocalInstance()
	if err != nil {
		return err
	}
	follower, err := env.Resolver().Instance(ctx, u.actor)
	if err != nil {
		return err
	}
	return models.NewInstances(env.DB).Unfollow(local, follower)
}

func (u *Undo) JSON() map[string]any {
	return envelopeJSON(&u.base, "Undo", u.Object.JSON(), nil)
}
