package activitypub

import (
	"bytes"
	"context"
	"crypto"
	"fmt"
	"io"
	"net/http"

	"github.com/carlmjohnson/requests"
	intcrypto "github.com/davecheney/wiki/internal/crypto"
	"github.com/davecheney/wiki/internal/httpsig"
	"github.com/go-json-experiment/json"
)

const activityContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// Client fetches and posts ActivityPub documents, signing each request.
type Client struct {
	keyID      string
	privateKey crypto.PrivateKey
	transport  http.RoundTripper
}

// NewClient returns a client which signs as keyID with the PEM encoded private key.
func NewClient(keyID string, privateKeyPEM *string, transport http.RoundTripper) (*Client, error) {
	if privateKeyPEM == nil {
		return nil, fmt.Errorf("%s has no private key", keyID)
	}
	privateKey, err := intcrypto.ParseRSAPrivateKey([]byte(*privateKeyPEM))
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		keyID:      keyID,
		privateKey: privateKey,
		transport:  transport,
	}, nil
}

// Fetch fetches the ActivityPub document at uri.
func (c *Client) Fetch(ctx context.Context, uri string) (map[string]any, error) {
	var buf bytes.Buffer
	err := requests.URL(uri).
		Accept(activityContentType).
		Transport(c).
		CheckStatus(http.StatusOK).
		CheckContentType("application/ld+json", "application/activity+json", "application/json").
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", uri, err)
	}
	return obj, nil
}

// Post delivers body to the inbox at url.
func (c *Client) Post(ctx context.Context, url string, body []byte) error {
	return requests.URL(url).
		Header("Content-Type", activityContentType).
		BodyBytes(body).
		Transport(c).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted).
		Fetch(ctx)
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	return c.transport.RoundTrip(req)
}

// instanceClient returns a client signing as the local instance.
func (e *Env) instanceClient() (*Client, error) {
	local, err := e.LocalInstance()
	if err != nil {
		return nil, fmt.Errorf("local instance: %w", err)
	}
	return NewClient(local.KeyID(), local.PrivateKey, e.transport())
}
