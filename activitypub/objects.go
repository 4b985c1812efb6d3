package activitypub

import (
	"errors"
	"fmt"
	"time"

	"github.com/davecheney/wiki/internal/markup"
	"github.com/davecheney/wiki/models"
)

// InstanceObject is the actor document of an instance.
type InstanceObject struct {
	ID          string
	Name        string
	Topic       string
	Inbox       string
	Articles    string
	Followers   string
	PublicKey   string
	PublicKeyID string
}

func instanceObject(i *models.Instance) *InstanceObject {
	obj := &InstanceObject{
		ID:          i.APID,
		Inbox:       i.InboxURL,
		Articles:    i.ArticlesURL,
		Followers:   i.APID + "followers",
		PublicKey:   i.PublicKey,
		PublicKeyID: i.KeyID(),
	}
	if i.Name != nil {
		obj.Name = *i.Name
	}
	if i.Topic != nil {
		obj.Topic = *i.Topic
	}
	return obj
}

func (o *InstanceObject) JSON() map[string]any {
	m := map[string]any{
		"@context":  activityStreamsContext,
		"type":      "Service",
		"id":        o.ID,
		"inbox":     o.Inbox,
		"articles":  o.Articles,
		"followers": o.Followers,
		"publicKey": map[string]any{
			"id":           o.PublicKeyID,
			"owner":        o.ID,
			"publicKeyPem": o.PublicKey,
		},
	}
	if o.Name != "" {
		m["name"] = o.Name
	}
	if o.Topic != "" {
		m["content"] = o.Topic
	}
	return m
}

func parseInstance(m map[string]any) (*InstanceObject, error) {
	if t := stringFromAny(m["type"]); t != "Service" {
		return nil, fmt.Errorf("%w: instance of type %q", ErrUnsupported, t)
	}
	key := mapFromAny(m["publicKey"])
	obj := &InstanceObject{
		ID:          stringFromAny(m["id"]),
		Name:        stringFromAny(m["name"]),
		Topic:       stringFromAny(m["content"]),
		Inbox:       stringFromAny(m["inbox"]),
		Articles:    stringFromAny(m["articles"]),
		Followers:   stringFromAny(m["followers"]),
		PublicKey:   stringFromAny(key["publicKeyPem"]),
		PublicKeyID: stringFromAny(key["id"]),
	}
	return obj, obj.verify()
}

func (o *InstanceObject) verify() error {
	if o.PublicKey == "" {
		return errors.New("instance has no public key")
	}
	if err := verifyDomainsMatch(o.ID, o.Inbox); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if o.Articles != "" {
		if err := verifyDomainsMatch(o.ID, o.Articles); err != nil {
			return fmt.Errorf("articles: %w", err)
		}
	}
	return nil
}

func (o *InstanceObject) row() (*models.Instance, error) {
	domain, err := domainOf(o.ID)
	if err != nil {
		return nil, err
	}
	row := &models.Instance{
		Domain:          domain,
		APID:            o.ID,
		ArticlesURL:     o.Articles,
		InboxURL:        o.Inbox,
		PublicKey:       o.PublicKey,
		LastRefreshedAt: time.Now(),
	}
	if o.Name != "" {
		row.Name = &o.Name
	}
	if o.Topic != "" {
		row.Topic = &o.Topic
	}
	return row, nil
}

// PersonObject is the actor document of a person.
type PersonObject struct {
	ID                string
	PreferredUsername string
	Inbox             string
	PublicKey         string
	PublicKeyID       string
}

func personObject(p *models.Person) *PersonObject {
	return &PersonObject{
		ID:                p.APID,
		PreferredUsername: p.Username,
		Inbox:             p.InboxURL,
		PublicKey:         p.PublicKey,
		PublicKeyID:       p.KeyID(),
	}
}

func (o *PersonObject) JSON() map[string]any {
	return map[string]any{
		"@context":          activityStreamsContext,
		"type":              "Person",
		"id":                o.ID,
		"preferredUsername": o.PreferredUsername,
		"inbox":             o.Inbox,
		"publicKey": map[string]any{
			"id":           o.PublicKeyID,
			"owner":        o.ID,
			"publicKeyPem": o.PublicKey,
		},
	}
}

func parsePerson(m map[string]any) (*PersonObject, error) {
	if t := stringFromAny(m["type"]); t != "Person" {
		return nil, fmt.Errorf("%w: person of type %q", ErrUnsupported, t)
	}
	key := mapFromAny(m["publicKey"])
	obj := &PersonObject{
		ID:                stringFromAny(m["id"]),
		PreferredUsername: stringFromAny(m["preferredUsername"]),
		Inbox:             stringFromAny(m["inbox"]),
		PublicKey:         stringFromAny(key["publicKeyPem"]),
		PublicKeyID:       stringFromAny(key["id"]),
	}
	if obj.PreferredUsername == "" {
		return nil, errors.New("person has no preferredUsername")
	}
	if obj.PublicKey == "" {
		return nil, errors.New("person has no public key")
	}
	if err := verifyDomainsMatch(obj.ID, obj.Inbox); err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	return obj, nil
}

func (o *PersonObject) row() *models.Person {
	return &models.Person{
		Username:        o.PreferredUsername,
		APID:            o.ID,
		InboxURL:        o.Inbox,
		PublicKey:       o.PublicKey,
		LastRefreshedAt: time.Now(),
	}
}

// ArticleObject is the federated form of an article.
type ArticleObject struct {
	ID            string
	AttributedTo  string
	Name          string
	Content       string
	LatestVersion string
	Protected     bool
	Published     time.Time
	Updated       time.Time
}

func articleObject(a *models.Article) *ArticleObject {
	return &ArticleObject{
		ID:            a.APID,
		AttributedTo:  a.Instance.APID,
		Name:          a.Title,
		Content:       a.Text,
		LatestVersion: a.LatestVersion,
		Protected:     a.Protected,
		Published:     a.Published,
		Updated:       a.Updated,
	}
}

func (o *ArticleObject) JSON() map[string]any {
	return map[string]any{
		"type":          "Article",
		"id":            o.ID,
		"attributedTo":  o.AttributedTo,
		"to":            []any{PublicCollection, o.AttributedTo + "followers"},
		"name":          o.Name,
		"content":       o.Content,
		"mediaType":     markup.MediaType,
		"latestVersion": o.LatestVersion,
		"protected":     o.Protected,
		"published":     o.Published.UTC().Format(time.RFC3339Nano),
		"updated":       o.Updated.UTC().Format(time.RFC3339Nano),
	}
}

func parseArticle(m map[string]any) (*ArticleObject, error) {
	if t := stringFromAny(m["type"]); t != "Article" {
		return nil, fmt.Errorf("%w: article of type %q", ErrUnsupported, t)
	}
	published, updated := publishedAndUpdated(m)
	obj := &ArticleObject{
		ID:            stringFromAny(m["id"]),
		AttributedTo:  stringFromAny(m["attributedTo"]),
		Name:          stringFromAny(m["name"]),
		Content:       stringFromAny(m["content"]),
		LatestVersion: stringFromAny(m["latestVersion"]),
		Protected:     boolFromAny(m["protected"]),
		Published:     published,
		Updated:       updated,
	}
	if obj.Name == "" {
		return nil, errors.New("article has no name")
	}
	if err := verifyDomainsMatch(obj.ID, obj.AttributedTo); err != nil {
		return nil, fmt.Errorf("attributedTo: %w", err)
	}
	return obj, nil
}

// NoteObject is the federated form of a comment.
type NoteObject struct {
	ID           string
	AttributedTo string
	InReplyTo    string
	Content      string
	MediaType    string
	Source       string
	Published    time.Time
	Updated      *time.Time
}

// noteObject returns the outbound form of a comment. The content of a
// deleted comment is not published.
func noteObject(c *models.Comment, creator *models.Person, inReplyTo string) *NoteObject {
	redacted := c.Redacted()
	return &NoteObject{
		ID:           c.APID,
		AttributedTo: creator.APID,
		InReplyTo:    inReplyTo,
		Content:      markup.RenderComment(redacted.Content),
		MediaType:    "text/html",
		Source:       redacted.Content,
		Published:    c.Published,
		Updated:      c.Updated,
	}
}

func (o *NoteObject) JSON() map[string]any {
	m := map[string]any{
		"type":         "Note",
		"id":           o.ID,
		"attributedTo": o.AttributedTo,
		"to":           []any{PublicCollection},
		"inReplyTo":    o.InReplyTo,
		"content":      o.Content,
		"mediaType":    o.MediaType,
		"source": map[string]any{
			"content":   o.Source,
			"mediaType": markup.MediaType,
		},
		"published": o.Published.UTC().Format(time.RFC3339Nano),
	}
	if o.Updated != nil {
		m["updated"] = o.Updated.UTC().Format(time.RFC3339Nano)
	}
	return m
}

func parseNote(m map[string]any) (*NoteObject, error) {
	if t := stringFromAny(m["type"]); t != "Note" {
		return nil, fmt.Errorf("%w: note of type %q", ErrUnsupported, t)
	}
	published := timeFromAnyOrZero(m["published"])
	if published.IsZero() {
		published = time.Now()
	}
	source := mapFromAny(m["source"])
	obj := &NoteObject{
		ID:           stringFromAny(m["id"]),
		AttributedTo: stringFromAny(m["attributedTo"]),
		InReplyTo:    stringFromAny(m["inReplyTo"]),
		Content:      stringFromAny(m["content"]),
		MediaType:    stringFromAny(m["mediaType"]),
		Source: markup.ExtractSource(
			stringFromAny(m["content"]),
			stringFromAny(source["mediaType"]),
			stringFromAny(source["content"]),
		),
		Published: published,
	}
	if updated := timeFromAnyOrZero(m["updated"]); !updated.IsZero() {
		obj.Updated = &updated
	}
	if obj.InReplyTo == "" {
		return nil, errors.New("note has no inReplyTo")
	}
	if _, err := domainOf(obj.AttributedTo); err != nil {
		return nil, fmt.Errorf("attributedTo: %w", err)
	}
	return obj, nil
}
