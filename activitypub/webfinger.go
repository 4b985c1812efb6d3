package activitypub

import (
	"context"
	"fmt"

	"github.com/davecheney/wiki/internal/webfinger"
	"github.com/davecheney/wiki/models"
)

// ResolveAcct resolves a user@host handle to a person, asking the host's
// webfinger endpoint for the person's ap_id.
func (e *Env) ResolveAcct(ctx context.Context, handle string) (*models.Person, error) {
	acct, err := webfinger.Parse(handle)
	if err != nil {
		return nil, err
	}
	if acct.Host == e.Federation.Domain {
		return models.NewPersons(e.DB).ReadLocal(acct.User)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.Federation.RequestTimeout)
	defer cancel()
	wf, err := acct.Fetch(fetchCtx, e.Federation.Scheme(), e.transport())
	if err != nil {
		return nil, &ResolutionError{ID: acct.String(), Err: err}
	}
	apID, err := wf.ActivityPub()
	if err != nil {
		return nil, &ResolutionError{ID: acct.String(), Err: err}
	}
	if err := verifyDomainsMatch(apID, e.Federation.Scheme()+"://"+acct.Host+"/"); err != nil {
		return nil, &ResolutionError{ID: acct.String(), Err: fmt.Errorf("webfinger: %w", err)}
	}
	return e.Resolver().Person(WithFetchBudget(ctx, e.Federation.FetchLimit), apID)
}
