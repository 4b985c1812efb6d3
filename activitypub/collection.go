package activitypub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/davecheney/wiki/models"
)

// ReadLocalArticles returns the collection of this instance's articles.
// Removed articles are not listed.
func (e *Env) ReadLocalArticles(ctx context.Context) (map[string]any, error) {
	local, err := e.LocalInstance()
	if err != nil {
		return nil, err
	}
	yes := true
	articles, err := models.NewArticles(e.DB.WithContext(ctx)).ReadAll(&yes, nil, false)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(articles))
	for i := range articles {
		article := &articles[i]
		update := &UpdateArticle{
			base:   base{id: e.url("/activity/update/%s/%s", article.ID, article.LatestVersion), actor: local.APID},
			Kind:   "Update",
			Object: articleObject(article),
		}
		items = append(items, update.JSON())
	}
	return map[string]any{
		"@context":   activityStreamsContext,
		"type":       "Collection",
		"id":         local.ArticlesURL,
		"totalItems": len(items),
		"items":      items,
	}, nil
}

// SyncResult reports the outcome of synchronising a collection.
type SyncResult struct {
	Applied  int
	Skipped  int
	Failures []SyncFailure
}

// SyncFailure is an item of a collection which could not be applied.
type SyncFailure struct {
	ID  string
	Err error
}

// SyncArticles applies each item of a peer's article collection. Items
// which are local are skipped. Items are applied concurrently and a failure
// of one does not affect the others.
func (e *Env) SyncArticles(ctx context.Context, peer *models.Instance, collection map[string]any) (*SyncResult, error) {
	id := stringFromAny(collection["id"])
	if err := verifyDomainsMatch(id, peer.APID); err != nil {
		return nil, &VerificationError{ID: id, Err: err}
	}
	if t := stringFromAny(collection["type"]); t != "Collection" && t != "OrderedCollection" {
		return nil, &VerificationError{ID: id, Err: fmt.Errorf("%w: collection of type %q", ErrUnsupported, t)}
	}
	items := anyToSlice(collection["items"])
	if items == nil {
		items = anyToSlice(collection["orderedItems"])
	}

	var (
		mu     sync.Mutex
		result SyncResult
		wg     sync.WaitGroup
	)
	for _, item := range items {
		m := mapFromAny(item)
		if m != nil && e.IsLocal(idFromAny(m["object"])) {
			result.Skipped++
			continue
		}
		wg.Add(1)
		go func(m map[string]any) {
			defer wg.Done()
			err := e.syncItem(ctx, m)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				itemID := idFromAny(m)
				e.Log().Warn("sync item failed", "collection", id, "item", itemID, "error", err)
				result.Failures = append(result.Failures, SyncFailure{ID: itemID, Err: err})
				return
			}
			result.Applied++
		}(m)
	}
	wg.Wait()
	return &result, nil
}

func (e *Env) syncItem(ctx context.Context, m map[string]any) error {
	if m == nil {
		return &VerificationError{Err: errors.New("collection item is not an object")}
	}
	activity, err := e.decodeMap(m)
	if err != nil {
		return err
	}
	if _, ok := activity.(*UpdateArticle); !ok {
		return &VerificationError{ID: activity.ID(), Err: fmt.Errorf("%w: %T in article collection", ErrUnsupported, activity)}
	}
	ctx, cancel := context.WithTimeout(ctx, e.unitTimeout())
	defer cancel()
	ctx = WithFetchBudget(ctx, e.Federation.FetchLimit)
	if err := activity.Verify(ctx, e); err != nil {
		return verificationError(activity.ID(), err)
	}
	if err := activity.Receive(ctx, e); err != nil {
		return &ApplyError{ID: activity.ID(), Err: err}
	}
	return nil
}

// FetchArticles dereferences a peer's article collection and synchronises it.
func (e *Env) FetchArticles(ctx context.Context, peer *models.Instance) (*SyncResult, error) {
	if peer.ArticlesURL == "" {
		return nil, fmt.Errorf("%s has no articles collection", peer.APID)
	}
	client, err := e.instanceClient()
	if err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.Federation.RequestTimeout)
	defer cancel()
	collection, err := client.Fetch(fetchCtx, peer.ArticlesURL)
	if err != nil {
		return nil, &ResolutionError{ID: peer.ArticlesURL, Err: err}
	}
	if got := stringFromAny(collection["id"]); !sameIdentity(got, peer.ArticlesURL) {
		return nil, &ResolutionError{ID: peer.ArticlesURL, Err: fmt.Errorf("%w: got %q", ErrIdentityMismatch, got)}
	}
	return e.SyncArticles(ctx, peer, collection)
}
