package activitypub

import (
	"context"
	"net/http"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/carlmjohnson/requests"
	"github.com/davecheney/wiki/models"
	"github.com/go-json-experiment/json"
)

// Delivery is the outcome of delivering an activity to one inbox.
type Delivery struct {
	Inbox string
	Err   error
}

// Send records activity in the outbox log then delivers it to each inbox
// concurrently. Failed deliveries are retried, logged, and reported in the
// result; they never fail the caller.
func (e *Env) Send(ctx context.Context, client *Client, activity Activity, inboxes []string) []Delivery {
	body, err := json.Marshal(activity.JSON())
	if err != nil {
		e.Log().Error("encode activity", "id", activity.ID(), "error", err)
		return failAll(inboxes, err)
	}
	if err := models.NewSentActivities(e.DB).Create(activity.ID(), body); err != nil {
		e.Log().Error("record sent activity", "id", activity.ID(), "error", err)
		return failAll(inboxes, err)
	}

	results := make([]Delivery, len(inboxes))
	var wg sync.WaitGroup
	for i, inbox := range inboxes {
		wg.Add(1)
		go func(i int, inbox string) {
			defer wg.Done()
			err := e.deliver(ctx, client, inbox, body)
			if err != nil {
				e.Log().Warn("delivery failed", "id", activity.ID(), "inbox", inbox, "error", err)
			}
			results[i] = Delivery{Inbox: inbox, Err: err}
		}(i, inbox)
	}
	wg.Wait()
	return results
}

func (e *Env) deliver(ctx context.Context, client *Client, inbox string, body []byte) error {
	return retry.Do(
		func() error {
			ctx, cancel := context.WithTimeout(ctx, e.Federation.RequestTimeout)
			defer cancel()
			return client.Post(ctx, inbox, body)
		},
		retry.Context(ctx),
		retry.Attempts(max(e.Federation.DeliveryAttempts, 1)),
		retry.Delay(e.Federation.DeliveryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			e.Log().Debug("retrying delivery", "inbox", inbox, "attempt", n+1, "error", err)
		}),
	)
}

// retryable reports whether a delivery failure may succeed if repeated.
// A peer which rejected the activity will reject it again.
func retryable(err error) bool {
	return !requests.HasStatusErr(err,
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusGone,
		http.StatusUnprocessableEntity,
	)
}

func failAll(inboxes []string, err error) []Delivery {
	results := make([]Delivery, len(inboxes))
	for i, inbox := range inboxes {
		results[i] = Delivery{Inbox: inbox, Err: err}
	}
	return results
}
