package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact represents a single prospect/customer contact
type Contact struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Industry  string `json:"industry"`
	Country   string `json:"country"`
	City      string `json:"city"`
	Phone     string `json:"phone"`
	Website   string `json:"website"`

	// Status
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	// Metadata
	Source          string     `json:"source"` // manual, csv, api, etc.
	LastContactedAt *time.Time `json:"last_contacted_at"`

	// Relations
	Tags []ContactTag `gorm:"foreignKey:ContactID" json:"tags,omitempty"`
}

// ContactTag represents tags for contacts (normalized)
type ContactTag struct {
	gorm.Model
	ContactID uint   `gorm:"not null;index" json:"contact_id"`
	Tag       string `gorm:"not null;index" json:"tag"`
}
