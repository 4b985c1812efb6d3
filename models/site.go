package models

import (
	"errors"

	"github.com/davecheney/wiki/internal/config"
	"gorm.io/gorm"
)

// SiteView combines the site options with the local instance, its
// administrator, and optionally the viewer's own profile.
type SiteView struct {
	Config    config.Options
	Admin     *Person
	Instance  *Instance
	MyProfile *Person
	Stats     *InstanceStats
}

// ReadSiteView builds the site view. The admin is nil if no local person is
// an administrator.
func ReadSiteView(db *gorm.DB, options config.Options, myProfile *Person) (*SiteView, error) {
	instance, err := NewInstances(db).ReadLocal()
	if err != nil {
		return nil, err
	}
	admin, err := NewPersons(db).ReadAdmin()
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		admin = nil
	case err != nil:
		return nil, err
	}
	stats, err := NewStats(db).Read()
	if err != nil {
		return nil, err
	}
	return &SiteView{
		Config:    options,
		Admin:     admin,
		Instance:  instance,
		MyProfile: myProfile,
		Stats:     stats,
	}, nil
}
