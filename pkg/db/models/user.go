package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a storefront customer.
type User struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email          string     `gorm:"column:email;type:text;not null;uniqueIndex:idx_users_email"`
	PasswordHash   string     `gorm:"column:password_hash;not null"`
	Name           string     `gorm:"column:name;not null"`
	Phone          *string    `gorm:"column:phone"`
	Address        *string    `gorm:"column:address"`
	Identification *string    `gorm:"column:identification"`
	IsActive       bool       `gorm:"column:is_active;not null"`
	LastLoginAt    *time.Time `gorm:"column:last_login_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// CustomerInfo snapshots the buyer identity printed on an invoice.
func (u User) CustomerInfo() CustomerInfo {
	return CustomerInfo{
		Name:           u.Name,
		Email:          u.Email,
		Phone:          deref(u.Phone),
		Address:        deref(u.Address),
		Identification: deref(u.Identification),
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
