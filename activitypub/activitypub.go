// Package activitypub federates a wiki with its peers. It verifies and
// applies inbound activities, resolves remote objects into local rows,
// delivers local activities, and synchronises article collections.
package activitypub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/davecheney/wiki/internal/config"
	"github.com/davecheney/wiki/models"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/singleflight"
)

// PublicCollection addresses an object to everyone.
const PublicCollection = "https://www.w3.org/ns/activitystreams#Public"

var activityStreamsContext = []any{
	"https://www.w3.org/ns/activitystreams",
	"https://w3id.org/security/v1",
}

type Env struct {
	*models.Env
	Federation config.Federation
	Options    config.Options

	// Transport carries outbound requests. If nil, http.DefaultTransport is used.
	Transport http.RoundTripper

	keys     *ristretto.Cache
	fetches  singleflight.Group
	envelope *jsonschema.Schema
}

// NewEnv returns an Env federating as the local instance described by cfg.
func NewEnv(env *models.Env, cfg *config.Config) (*Env, error) {
	keys, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("key cache: %w", err)
	}
	envelope, err := compileEnvelope()
	if err != nil {
		return nil, fmt.Errorf("envelope schema: %w", err)
	}
	return &Env{
		Env:        env,
		Federation: cfg.Federation,
		Options:    cfg.Options,
		keys:       keys,
		envelope:   envelope,
	}, nil
}

// Resolver returns the object resolver for e.
func (e *Env) Resolver() *Resolver {
	return &Resolver{env: e}
}

// LocalInstance returns the local instance row.
func (e *Env) LocalInstance() (*models.Instance, error) {
	return models.NewInstances(e.DB).ReadLocal()
}

// IsLocal reports whether apID identifies an object on this instance.
func (e *Env) IsLocal(apID string) bool {
	host, err := domainOf(apID)
	return err == nil && host == e.Federation.Domain
}

// url returns an absolute url on this instance.
func (e *Env) url(format string, args ...any) string {
	return fmt.Sprintf("%s://%s", e.Federation.Scheme(), e.Federation.Domain) + fmt.Sprintf(format, args...)
}

// newActivityID mints the id of an outbound activity.
func (e *Env) newActivityID() string {
	return e.url("/activity/%s", uuid.New())
}

func (e *Env) transport() http.RoundTripper {
	if e.Transport != nil {
		return e.Transport
	}
	return http.DefaultTransport
}

// dispatch runs fn on a new goroutine detached from the cancellation of
// ctx, so that deliveries triggered by an inbound request do not hold that
// request open. Errors are logged. Use Wait to join outstanding calls.
func (e *Env) dispatch(ctx context.Context, what, id string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	e.Go(func() {
		if err := fn(ctx); err != nil {
			e.Log().Warn(what+" failed", "id", id, "error", err)
		}
	})
}

// unitTimeout bounds the work done on behalf of one inbound activity or
// collection item, including every fetch it triggers.
func (e *Env) unitTimeout() time.Duration {
	return time.Duration(max(e.Federation.FetchLimit, 1)) * e.Federation.RequestTimeout
}

// fetchBudget bounds the number of network fetches made on behalf of one
// inbound unit.
type fetchBudget struct {
	remaining atomic.Int64
}

type budgetKey struct{}

// WithFetchBudget returns a context which permits n network fetches.
func WithFetchBudget(ctx context.Context, n int) context.Context {
	b := new(fetchBudget)
	b.remaining.Store(int64(n))
	return context.WithValue(ctx, budgetKey{}, b)
}

// spendFetch consumes one fetch from the context's budget. A context
// without a budget is not limited.
func spendFetch(ctx context.Context) error {
	b, ok := ctx.Value(budgetKey{}).(*fetchBudget)
	if !ok {
		return nil
	}
	if b.remaining.Add(-1) < 0 {
		return ErrFetchLimit
	}
	return nil
}

// domainOf returns the host, including any port, of an absolute url.
func domainOf(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute url", s)
	}
	return u.Host, nil
}

// verifyDomainsMatch returns ErrDomainMismatch unless a and b share a host.
func verifyDomainsMatch(a, b string) error {
	ha, err := domainOf(a)
	if err != nil {
		return err
	}
	hb, err := domainOf(b)
	if err != nil {
		return err
	}
	if ha != hb {
		return fmt.Errorf("%w: %s and %s", ErrDomainMismatch, ha, hb)
	}
	return nil
}

// sameIdentity reports whether two identifiers name the same object.
func sameIdentity(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host && ua.EscapedPath() == ub.EscapedPath()
}

func (e *Env) verifyIsRemote(apID string) error {
	if e.IsLocal(apID) {
		return fmt.Errorf("%w: %s", ErrLocalObject, apID)
	}
	return nil
}

func boolFromAny(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func anyToSlice(v any) []any {
	switch v := v.(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

func timeFromAnyOrZero(v any) time.Time {
	switch v := v.(type) {
	case string:
		t, _ := time.Parse(time.RFC3339, v)
		return t
	case time.Time:
		return v
	default:
		return time.Time{}
	}
}

// publishedAndUpdated returns the published and updated times of obj.
// Updated defaults to published if it is missing or invalid.
func publishedAndUpdated(obj map[string]any) (time.Time, time.Time) {
	published := timeFromAnyOrZero(obj["published"])
	if published.IsZero() {
		published = time.Now()
	}
	updated := timeFromAnyOrZero(obj["updated"])
	if updated.IsZero() {
		updated = published
	}
	return published, updated
}

// idFromAny returns the id of v, which is either an identifier or an
// object with an id.
func idFromAny(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		return stringFromAny(v["id"])
	default:
		return ""
	}
}

// trimKeyID removes the fragment from a key id.
func trimKeyID(id string) string {
	if i := strings.Index(id, "#"); i != -1 {
		return id[:i]
	}
	return id
}
