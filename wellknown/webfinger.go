package wellknown

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/davecheney/wiki/activitypub"
	"github.com/davecheney/wiki/internal/httpx"
	"github.com/davecheney/wiki/internal/webfinger"
	"github.com/davecheney/wiki/models"
	"github.com/go-json-experiment/json"
	"gorm.io/gorm"
)

// WebfingerShow resolves a handle of a local person.
func WebfingerShow(env *activitypub.Env, rw http.ResponseWriter, r *http.Request) error {
	acct, err := webfinger.Parse(r.URL.Query().Get("resource"))
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if acct.Host != env.Federation.Domain {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("%s is not a local account", acct))
	}
	person, err := models.NewPersons(env.DB).ReadLocal(acct.User)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}

	rw.Header().Set("Content-Type", webfinger.ContentType)
	return json.MarshalFull(rw, &webfinger.Webfinger{
		Subject: acct.String(),
		Aliases: []string{person.APID},
		Links: []webfinger.Link{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: person.APID,
			},
		},
	})
}
