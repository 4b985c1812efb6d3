package models

import (
	"fmt"
	"time"

	"github.com/davecheney/wiki/internal/crypto"
	"github.com/davecheney/wiki/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// An Instance is a wiki federating with this server, or this server itself.
// Exactly one Instance is Local.
type Instance struct {
	snowflake.ID    `gorm:"primarykey;autoIncrement:false"`
	Domain          string  `gorm:"size:255;uniqueIndex;not null"`
	APID            string  `gorm:"column:ap_id;size:255;uniqueIndex;not null"`
	Topic           *string `gorm:"size:255"`
	Name            *string `gorm:"size:255"`
	ArticlesURL     string  `gorm:"size:255;not null"`
	InboxURL        string  `gorm:"size:255;not null"`
	PublicKey       string  `gorm:"type:text;not null"`
	PrivateKey      *string `gorm:"type:text"`
	LastRefreshedAt time.Time
	Local           bool `gorm:"not null;default:false"`
}

func (i *Instance) BeforeCreate(tx *gorm.DB) error {
	return forEach(tx, i.validateInboxURL)
}

func (i *Instance) validateInboxURL(tx *gorm.DB) error {
	if !validURL(i.InboxURL) {
		return fmt.Errorf("%w: %q", ErrInvalidInboxURL, i.InboxURL)
	}
	return nil
}

// KeyID returns the id of the instance's public key.
func (i *Instance) KeyID() string {
	return i.APID + "#main-key"
}

// InstanceFollow records that Follower follows Instance. A follow is pending
// until the followed instance accepts it.
type InstanceFollow struct {
	InstanceID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Instance   *Instance    `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	FollowerID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Follower   *Instance    `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	Pending    bool         `gorm:"not null"`
}

type Instances struct {
	db *gorm.DB
}

func NewInstances(db *gorm.DB) *Instances {
	return &Instances{db: db}
}

// Read returns the instance with the given id.
func (i *Instances) Read(id snowflake.ID) (*Instance, error) {
	var instance Instance
	return &instance, i.db.Where("id = ?", id).Take(&instance).Error
}

// ReadByAPID returns the instance with the given ap_id.
func (i *Instances) ReadByAPID(apID string) (*Instance, error) {
	var instance Instance
	return &instance, i.db.Where("ap_id = ?", apID).Take(&instance).Error
}

// ReadByDomain returns the instance for a domain.
func (i *Instances) ReadByDomain(domain string) (*Instance, error) {
	var instance Instance
	return &instance, i.db.Where("domain = ?", domain).Take(&instance).Error
}

// ReadLocal returns the local instance.
func (i *Instances) ReadLocal() (*Instance, error) {
	var instance Instance
	return &instance, i.db.Where("local = ?", true).Take(&instance).Error
}

// Upsert inserts instance, or updates the existing row with the same ap_id.
// The stored row is returned.
func (i *Instances) Upsert(instance *Instance) (*Instance, error) {
	if instance.ID == 0 {
		instance.ID = snowflake.Now()
	}
	err := i.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ap_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"topic",
			"name",
			"articles_url",
			"inbox_url",
			"public_key",
			"last_refreshed_at",
		}),
	}).Create(instance).Error
	if err != nil {
		return nil, err
	}
	return i.ReadByAPID(instance.APID)
}

// UpdateFields applies a sparse update to the instance with the given id.
func (i *Instances) UpdateFields(id snowflake.ID, fields map[string]any) (*Instance, error) {
	if inbox, ok := fields["inbox_url"].(string); ok && !validURL(inbox) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInboxURL, inbox)
	}
	return updateFields[Instance](i.db, id, fields)
}

// CreateLocal creates the local instance for domain, complete with a signing
// keypair. scheme is the scheme of the instance's identifiers.
func (i *Instances) CreateLocal(scheme, domain string, topic *string) (*Instance, error) {
	var instance Instance
	err := i.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Instance{}).Where("local = ?", true).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrLocalInstanceExists
		}
		kp, err := crypto.GenerateRSAKeypair()
		if err != nil {
			return err
		}
		privateKey := string(kp.PrivateKey)
		apID := fmt.Sprintf("%s://%s/", scheme, domain)
		instance = Instance{
			ID:              snowflake.Now(),
			Domain:          domain,
			APID:            apID,
			Topic:           topic,
			ArticlesURL:     apID + "all_articles",
			InboxURL:        apID + "inbox",
			PublicKey:       string(kp.PublicKey),
			PrivateKey:      &privateKey,
			LastRefreshedAt: time.Now(),
			Local:           true,
		}
		return tx.Create(&instance).Error
	})
	return &instance, err
}

// ReadFollowers returns the instances with an accepted follow of instanceID.
func (i *Instances) ReadFollowers(instanceID snowflake.ID) ([]Instance, error) {
	var followers []Instance
	err := i.db.Joins("JOIN instance_follows ON instance_follows.follower_id = instances.id").
		Where("instance_follows.instance_id = ? AND instance_follows.pending = ?", instanceID, false).
		Order("instances.domain").
		Find(&followers).Error
	return followers, err
}

// ReadFollowing returns the follows made by followerID, pending or not.
func (i *Instances) ReadFollowing(followerID snowflake.ID) ([]InstanceFollow, error) {
	var follows []InstanceFollow
	err := i.db.Preload("Instance").Where("follower_id = ?", followerID).Find(&follows).Error
	return follows, err
}

// Follow records that follower follows instance.
func (i *Instances) Follow(instance, follower *Instance, pending bool) error {
	return i.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}, {Name: "follower_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pending"}),
	}).Create(&InstanceFollow{
		InstanceID: instance.ID,
		FollowerID: follower.ID,
		Pending:    pending,
	}).Error
}

// AcceptFollow marks the follow of instance by follower as accepted.
func (i *Instances) AcceptFollow(instance, follower *Instance) error {
	res := i.db.Model(&InstanceFollow{}).
		Where("instance_id = ? AND follower_id = ?", instance.ID, follower.ID).
		Update("pending", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Unfollow removes the follow of instance by follower, if any.
func (i *Instances) Unfollow(instance, follower *Instance) error {
	return i.db.Where("instance_id = ? AND follower_id = ?", instance.ID, follower.ID).Delete(&InstanceFollow{}).Error
}

// updateFields updates the row of T with the given id and returns the result.
// gorm.ErrRecordNotFound is returned if no row has that id.
func updateFields[T any](db *gorm.DB, id snowflake.ID, fields map[string]any) (*T, error) {
	if err := db.Model(new(T)).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, err
	}
	var row T
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
