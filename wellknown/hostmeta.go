package wellknown

import (
	"io"
	"net/http"

	"github.com/davecheney/wiki/activitypub"
)

func HostMetaIndex(env *activitypub.Env, rw http.ResponseWriter, r *http.Request) error {
	rw.Header().Set("Content-Type", "application/xrd+xml")
	_, err := io.WriteString(rw, `<?xml version="1.0" encoding="UTF-8"?>
		<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
		<Subject>`+env.Federation.Domain+`</Subject>
		<Link rel="lrdd" template="`+baseURL(env)+`/.well-known/webfinger?resource={uri}"/>
		</XRD>`)
	return err
}
