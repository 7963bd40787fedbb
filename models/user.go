package models

import "gorm.io/gorm"

// User is an operator account. Credentials and token issuance live in the
// external auth service; this row only backs JWT verification and audit
// fields (who reviewed a draft, who owns a segment).
type User struct {
	gorm.Model
	Email string `gorm:"not null;uniqueIndex" json:"email"`
	Name  string `json:"name"`

	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`
}
