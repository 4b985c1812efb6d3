package activitypub

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// An Activity is one of the activities this instance federates. The set is
// closed: Decode returns one of Announce, UpdateArticle,
// CreateOrUpdateComment, Follow, Accept, Undo or DeleteComment.
type Activity interface {
	// ID returns the activity's ap_id.
	ID() string
	// Actor returns the ap_id of the actor which performed the activity.
	Actor() string
	// Verify checks the activity has a consistent origin. It performs no writes.
	Verify(ctx context.Context, env *Env) error
	// Receive applies a verified activity.
	Receive(ctx context.Context, env *Env) error
	// JSON returns the wire form of the activity.
	JSON() map[string]any

	activity()
}

// envelope is the shape every inbound activity must have.
const envelope = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["id", "type", "actor", "object"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"type": {"type": "string", "minLength": 1},
		"actor": {"type": "string", "minLength": 1},
		"object": {"type": ["string", "object"]}
	}
}`

func compileEnvelope() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("envelope.json")
}

// Decode parses an inbound activity, checking its envelope first.
func (e *Env) Decode(body []byte) (Activity, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, &VerificationError{Err: err}
	}
	if err := e.envelope.Validate(inst); err != nil {
		return nil, &VerificationError{ID: idFromAny(inst), Err: err}
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, &VerificationError{Err: err}
	}
	return decode(m, true)
}

// decodeMap parses an activity already decoded from JSON.
func (e *Env) decodeMap(m map[string]any) (Activity, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, &VerificationError{ID: idFromAny(m), Err: err}
	}
	return e.Decode(body)
}

// decode returns the variant of m. Announce may only wrap a single level of
// non-Announce activity.
func decode(m map[string]any, allowAnnounce bool) (Activity, error) {
	id := stringFromAny(m["id"])
	fail := func(err error) (Activity, error) {
		return nil, &VerificationError{ID: id, Err: err}
	}
	actor := stringFromAny(m["actor"])
	if id == "" || actor == "" {
		return fail(fmt.Errorf("activity is missing id or actor"))
	}
	base := base{id: id, actor: actor}
	switch t := stringFromAny(m["type"]); t {
	case "Announce":
		if !allowAnnounce {
			return fail(fmt.Errorf("%w: nested Announce", ErrUnsupported))
		}
		obj := mapFromAny(m["object"])
		if obj == nil {
			return fail(fmt.Errorf("announce object must be an activity"))
		}
		inner, err := decode(obj, false)
		if err != nil {
			return nil, err
		}
		return &Announce{base: base, Object: inner}, nil
	case "Create", "Update":
		obj := mapFromAny(m["object"])
		switch ot := stringFromAny(obj["type"]); ot {
		case "Article":
			article, err := parseArticle(obj)
			if err != nil {
				return fail(err)
			}
			return &UpdateArticle{base: base, Kind: t, Object: article}, nil
		case "Note":
			note, err := parseNote(obj)
			if err != nil {
				return fail(err)
			}
			return &CreateOrUpdateComment{base: base, Kind: t, Object: note}, nil
		default:
			return fail(fmt.Errorf("%w: %s of %q", ErrUnsupported, t, ot))
		}
	case "Follow":
		return decodeFollow(m)
	case "Accept":
		follow, err := decodeFollow(mapFromAny(m["object"]))
		if err != nil {
			return nil, err
		}
		return &Accept{base: base, Object: follow}, nil
	case "Undo":
		follow, err := decodeFollow(mapFromAny(m["object"]))
		if err != nil {
			return nil, err
		}
		return &Undo{base: base, Object: follow}, nil
	case "Delete":
		object := idFromAny(m["object"])
		if object == "" {
			return fail(fmt.Errorf("delete has no object"))
		}
		return &DeleteComment{base: base, Object: object}, nil
	default:
		return fail(fmt.Errorf("%w: %q", ErrUnsupported, t))
	}
}

func decodeFollow(m map[string]any) (*Follow, error) {
	id := stringFromAny(m["id"])
	if t := stringFromAny(m["type"]); t != "Follow" {
		return nil, &VerificationError{ID: id, Err: fmt.Errorf("%w: expected Follow, got %q", ErrUnsupported, t)}
	}
	f := &Follow{
		base:   base{id: id, actor: stringFromAny(m["actor"])},
		Object: idFromAny(m["object"]),
	}
	if f.id == "" || f.actor == "" || f.Object == "" {
		return nil, &VerificationError{ID: id, Err: fmt.Errorf("follow is missing id, actor or object")}
	}
	return f, nil
}

// base carries the identity shared by every activity.
type base struct {
	id    string
	actor string
}

func (b *base) ID() string    { return b.id }
func (b *base) Actor() string { return b.actor }
func (b *base) activity()     {}

// verifyActor checks that the activity id and actor share an origin.
func (b *base) verifyActor() error {
	return verifyDomainsMatch(b.id, b.actor)
}

func envelopeJSON(b *base, kind string, object any, to []any) map[string]any {
	m := map[string]any{
		"@context": activityStreamsContext,
		"id":       b.id,
		"type":     kind,
		"actor":    b.actor,
		"object":   object,
	}
	if len(to) > 0 {
		m["to"] = to
	}
	return m
}
