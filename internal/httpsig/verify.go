package httpsig

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// VerifyDigest checks the Digest header of req against body.
func VerifyDigest(req *http.Request, body []byte) error {
	got := req.Header.Get("Digest")
	if got == "" {
		return errors.New("Digest header is missing")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(digest(body))) != 1 {
		return ErrDigestMismatch
	}
	return nil
}

// SignedHeaders returns the lower cased names of the headers covered by the
// request's signature. A signature without a headers parameter covers date.
func SignedHeaders(req *http.Request) ([]string, error) {
	sig := req.Header.Get("Signature")
	if sig == "" {
		auth := req.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Signature ") {
			return nil, errors.New("Signature header is missing")
		}
		sig = strings.TrimPrefix(auth, "Signature ")
	}
	params, err := parseParams(sig)
	if err != nil {
		return nil, err
	}
	headers, ok := params["headers"]
	if !ok {
		return []string{"date"}, nil
	}
	return strings.Fields(strings.ToLower(headers)), nil
}

// VerifyCoverage checks that the request's signature covers every one of
// the required headers.
func VerifyCoverage(req *http.Request, required ...string) error {
	signed, err := SignedHeaders(req)
	if err != nil {
		return err
	}
	for _, h := range required {
		if !slices.Contains(signed, strings.ToLower(h)) {
			return fmt.Errorf("%w: %s", ErrNotSigned, h)
		}
	}
	return nil
}

// VerifyDate checks that the Date header of req is within skew of now.
func VerifyDate(req *http.Request, now time.Time, skew time.Duration) error {
	date, err := http.ParseTime(req.Header.Get("Date"))
	if err != nil {
		return fmt.Errorf("Date header: %w", err)
	}
	if d := now.Sub(date); d > skew || d < -skew {
		return fmt.Errorf("%w: %s", ErrClockSkew, date.Format(time.RFC3339))
	}
	return nil
}

// parseParams splits a signature into its key="value" parameters.
func parseParams(s string) (map[string]string, error) {
	params := make(map[string]string)
	for s = strings.TrimSpace(s); s != ""; {
		key, rest, ok := strings.Cut(s, "=")
		if !ok || !strings.HasPrefix(rest, `"`) {
			return nil, fmt.Errorf("malformed signature parameter %q", s)
		}
		value, rest, ok := strings.Cut(rest[1:], `"`)
		if !ok {
			return nil, fmt.Errorf("unterminated signature parameter %q", key)
		}
		params[strings.ToLower(strings.TrimSpace(key))] = value
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), ","))
	}
	return params, nil
}

var (
	// ErrNotSigned is returned when a header which must be signed is not.
	ErrNotSigned = errors.New("header not covered by signature")

	// ErrClockSkew is returned when a request's Date is too far from now.
	ErrClockSkew = errors.New("date outside the permitted skew")
)
