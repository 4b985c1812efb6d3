package activitypub

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	intcrypto "github.com/davecheney/wiki/internal/crypto"
	"github.com/davecheney/wiki/internal/httpsig"
	"github.com/davecheney/wiki/internal/httpx"
	"github.com/davecheney/wiki/internal/mime"
	"github.com/davecheney/wiki/models"
	gofed "github.com/go-fed/httpsig"
)

// maxActivitySize bounds the body of an inbound activity.
const maxActivitySize = 1 << 20

const keyTTL = 10 * time.Minute

// maxClockSkew bounds the difference between an inbound request's Date and
// the local clock.
const maxClockSkew = 12 * time.Hour

// Receive runs an inbound activity through the receipt pipeline.
func (e *Env) Receive(ctx context.Context, body []byte) error {
	activity, err := e.Decode(body)
	if err != nil {
		return err
	}
	return e.ReceiveActivity(ctx, activity)
}

// ReceiveActivity verifies then applies a decoded activity. An activity
// this instance sent is acknowledged without effect.
func (e *Env) ReceiveActivity(ctx context.Context, activity Activity) error {
	ctx, cancel := context.WithTimeout(ctx, e.unitTimeout())
	defer cancel()
	ctx = WithFetchBudget(ctx, e.Federation.FetchLimit)
	own, err := models.NewSentActivities(e.DB).Exists(activity.ID())
	if err != nil {
		return &ApplyError{ID: activity.ID(), Err: err}
	}
	if own {
		e.Log().Debug("ignoring echo of sent activity", "id", activity.ID())
		return nil
	}
	if err := activity.Verify(ctx, e); err != nil {
		return verificationError(activity.ID(), err)
	}
	if err := activity.Receive(ctx, e); err != nil {
		if errors.Is(err, models.ErrMaxDepthExceeded) || errors.Is(err, models.ErrParentMismatch) {
			return verificationError(activity.ID(), err)
		}
		e.Log().Warn("apply failed", "id", activity.ID(), "actor", activity.Actor(), "error", err)
		return &ApplyError{ID: activity.ID(), Err: err}
	}
	return nil
}

// InboxCreate handles POST /inbox.
func InboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	if !mime.IsActivity(r) {
		return httpx.Error(http.StatusUnsupportedMediaType, fmt.Errorf("unsupported media type %q", mime.MediaType(r)))
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActivitySize))
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if err := httpsig.VerifyCoverage(r, httpsig.RequestTarget, "date", "digest"); err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}
	if err := httpsig.VerifyDate(r, time.Now(), maxClockSkew); err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}
	if err := httpsig.VerifyDigest(r, body); err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}
	owner, err := env.verifySignature(r.Context(), r)
	if err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}
	activity, err := env.Decode(body)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if owner != activity.Actor() {
		return httpx.Error(http.StatusUnauthorized, fmt.Errorf("signed by %s, not the actor %s", owner, activity.Actor()))
	}
	if err := env.ReceiveActivity(r.Context(), activity); err != nil {
		return httpx.Error(statusOf(err), err)
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func statusOf(err error) int {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type cachedKey struct {
	owner string
	key   *rsa.PublicKey
}

// verifySignature checks the request's HTTP signature and returns the
// ap_id of the key's owner.
func (e *Env) verifySignature(ctx context.Context, r *http.Request) (string, error) {
	verifier, err := gofed.NewVerifier(r)
	if err != nil {
		return "", err
	}
	key, err := e.publicKey(ctx, verifier.KeyId())
	if err != nil {
		return "", err
	}
	if err := verifier.Verify(key.key, gofed.RSA_SHA256); err != nil {
		e.keys.Del(verifier.KeyId())
		return "", err
	}
	return key.owner, nil
}

// publicKey returns the key with the given id, resolving its owner if
// it is not cached.
func (e *Env) publicKey(ctx context.Context, keyID string) (*cachedKey, error) {
	if v, ok := e.keys.Get(keyID); ok {
		return v.(*cachedKey), nil
	}
	ctx = WithFetchBudget(ctx, e.Federation.FetchLimit)
	owner, pem, err := e.Resolver().Actor(ctx, trimKeyID(keyID))
	if err != nil {
		return nil, err
	}
	key, err := intcrypto.ParseRSAPublicKey([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", keyID, err)
	}
	ck := &cachedKey{owner: owner, key: key}
	e.keys.SetWithTTL(keyID, ck, 1, keyTTL)
	return ck, nil
}
