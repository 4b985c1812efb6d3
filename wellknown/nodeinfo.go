package wellknown

import (
	"errors"
	"net/http"

	"github.com/davecheney/wiki/activitypub"
	"github.com/davecheney/wiki/internal/httpx"
	"github.com/davecheney/wiki/internal/to"
	"github.com/davecheney/wiki/models"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const softwareVersion = "0.0.0-devel"

func NodeInfoIndex(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"links": []any{
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				"href": baseURL(env) + "/nodeinfo/2.0",
			},
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.1",
				"href": baseURL(env) + "/nodeinfo/2.1",
			},
		},
	})
}

func NodeInfoShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	site, err := models.ReadSiteView(env.DB, env.Options, nil)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}
	software := map[string]any{
		"name":    "wiki",
		"version": softwareVersion,
	}
	switch version := chi.URLParam(r, "version"); version {
	case "2.0":
		// https://github.com/jhass/nodeinfo/blob/main/schemas/2.0/schema.json
	case "2.1":
		software["repository"] = "https://github.com/davecheney/wiki"
	default:
		return httpx.Error(http.StatusNotFound, errors.New("unsupported version: "+version))
	}
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"version":           chi.URLParam(r, "version"),
		"software":          software,
		"protocols":         []any{"activitypub"},
		"services":          map[string]any{"inbound": []any{}, "outbound": []any{}},
		"usage":             usage(site.Stats),
		"openRegistrations": site.Config.RegistrationOpen,
		"metadata":          metadata(site),
	})
}

func metadata(site *models.SiteView) map[string]any {
	m := map[string]any{
		"emailRequired": site.Config.EmailRequired,
	}
	if site.Instance.Name != nil {
		m["nodeName"] = *site.Instance.Name
	}
	if site.Instance.Topic != nil {
		m["nodeDescription"] = *site.Instance.Topic
	}
	if site.Admin != nil {
		m["admin"] = site.Admin.APID
	}
	return m
}

func usage(stats *models.InstanceStats) map[string]any {
	return map[string]any{
		"users": map[string]any{
			"total":          stats.Users,
			"activeMonth":    stats.UsersActiveMonth,
			"activeHalfyear": stats.UsersActiveHalfYear,
		},
		"localPosts":    stats.Articles,
		"localComments": stats.Comments,
	}
}
