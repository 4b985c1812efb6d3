package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/davecheney/wiki/internal/crypto"
	"github.com/davecheney/wiki/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A Person is a user of this, or another, instance.
type Person struct {
	snowflake.ID    `gorm:"primarykey;autoIncrement:false"`
	Username        string  `gorm:"size:64;not null"`
	APID            string  `gorm:"column:ap_id;size:255;uniqueIndex;not null"`
	InboxURL        string  `gorm:"size:255;not null"`
	PublicKey       string  `gorm:"type:text;not null"`
	PrivateKey      *string `gorm:"type:text"`
	LastRefreshedAt time.Time
	Local           bool `gorm:"not null;default:false"`
	Admin           bool `gorm:"not null;default:false"`
}

// KeyID returns the id of the person's public key.
func (p *Person) KeyID() string {
	return p.APID + "#main-key"
}

type Persons struct {
	db *gorm.DB
}

func NewPersons(db *gorm.DB) *Persons {
	return &Persons{db: db}
}

func (p *Persons) Read(id snowflake.ID) (*Person, error) {
	var person Person
	return &person, p.db.Where("id = ?", id).Take(&person).Error
}

func (p *Persons) ReadByAPID(apID string) (*Person, error) {
	var person Person
	return &person, p.db.Where("ap_id = ?", apID).Take(&person).Error
}

// ReadLocal returns the local person with the given username.
func (p *Persons) ReadLocal(username string) (*Person, error) {
	var person Person
	return &person, p.db.Where("username = ? AND local = ?", username, true).Take(&person).Error
}

// ReadAdmin returns the first local administrator.
func (p *Persons) ReadAdmin() (*Person, error) {
	var person Person
	return &person, p.db.Where("local = ? AND admin = ?", true, true).Order("id").Take(&person).Error
}

// Upsert inserts person, or updates the existing row with the same ap_id.
func (p *Persons) Upsert(person *Person) (*Person, error) {
	if person.ID == 0 {
		person.ID = snowflake.Now()
	}
	err := p.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ap_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username",
			"inbox_url",
			"public_key",
			"last_refreshed_at",
		}),
	}).Create(person).Error
	if err != nil {
		return nil, err
	}
	return p.ReadByAPID(person.APID)
}

func (p *Persons) UpdateFields(id snowflake.ID, fields map[string]any) (*Person, error) {
	return updateFields[Person](p.db, id, fields)
}

// CreateLocal creates a local person on instance.
func (p *Persons) CreateLocal(instance *Instance, username string, admin bool) (*Person, error) {
	kp, err := crypto.GenerateRSAKeypair()
	if err != nil {
		return nil, err
	}
	privateKey := string(kp.PrivateKey)
	person := &Person{
		ID:              snowflake.Now(),
		Username:        username,
		APID:            fmt.Sprintf("%s/user/%s", strings.TrimSuffix(instance.APID, "/"), username),
		InboxURL:        instance.InboxURL,
		PublicKey:       string(kp.PublicKey),
		PrivateKey:      &privateKey,
		LastRefreshedAt: time.Now(),
		Local:           true,
		Admin:           admin,
	}
	if err := p.db.Create(person).Error; err != nil {
		return nil, err
	}
	return person, nil
}
