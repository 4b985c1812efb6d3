// Package httpsig implements the HTTP Signature scheme as defined in draft-cavage-http-signatures-10.
package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// RequestTarget is the pseudo-header used to sign the request target.
	RequestTarget = "(request-target)"
)

// Sign signs the request using the given keyID and privateKey.
// POST requests additionally carry a Digest header over body.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	rsaKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("unsupported private key type %T", privateKey)
	}
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat)) // Date must be in GMT, not UTC 🤯
	headersToSign := []string{
		RequestTarget,
	}
	switch req.Method {
	case http.MethodGet:
		headersToSign = append(headersToSign, "host", "date", "accept")
	case http.MethodPost:
		headersToSign = append(headersToSign, "date", "digest")
		req.Header.Set("Digest", digest(body))
	}

	s, err := signingString(req, headersToSign)
	if err != nil {
		return err
	}
	hashed := sha256.Sum256([]byte(s))
	sig, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, hashed[:])
	if err != nil {
		return err
	}
	enc := base64.StdEncoding.EncodeToString(sig)
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`, keyID, strings.Join(headersToSign, " "), enc))
	return nil
}

// signingString returns the string covered by the signature for the given headers.
func signingString(req *http.Request, headers []string) (string, error) {
	var sb strings.Builder
	for i, header := range headers {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch strings.ToLower(header) {
		case RequestTarget:
			sb.WriteString("(request-target): ")
			sb.WriteString(strings.ToLower(req.Method))
			sb.WriteString(" ")
			sb.WriteString(req.URL.Path)
			if req.URL.RawQuery != "" {
				sb.WriteString("?")
				sb.WriteString(req.URL.RawQuery)
			}
		case "host":
			sb.WriteString("host: ")
			sb.WriteString(req.Host)
		case "date", "accept", "digest":
			sb.WriteString(strings.ToLower(header))
			sb.WriteString(": ")
			sb.WriteString(req.Header.Get(header))
		default:
			return "", fmt.Errorf("unknown header to sign: %s", header)
		}
	}
	return sb.String(), nil
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// ErrDigestMismatch is returned when the Digest header does not match the request body.
var ErrDigestMismatch = errors.New("digest does not match body")
