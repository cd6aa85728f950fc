package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Model is gorm.Model without soft deletion: rows removed here are gone for good.
	Model struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		Model
		Email    string `gorm:"unique;not null"`
		Password string `gorm:"not null"`
		Token    string `gorm:"index;not null"`
		IsStaff  bool   `gorm:"not null;default:false"`
	}

	Book struct {
		Model
		Name       string          `gorm:"size:255;not null"`
		Price      decimal.Decimal `gorm:"type:decimal(7,2);not null"`
		AuthorName string          `gorm:"size:255;not null"`
		OwnerID    *uint64         `gorm:"index"`
		Owner      *User           `gorm:"constraint:OnDelete:SET NULL;"`
	}

	UserBookRelation struct {
		Model
		UserID      uint64 `gorm:"not null;uniqueIndex:uidx_user_book"`
		User        User   `gorm:"constraint:OnDelete:CASCADE;"`
		BookID      uint64 `gorm:"not null;uniqueIndex:uidx_user_book"`
		Book        Book   `gorm:"constraint:OnDelete:CASCADE;"`
		Like        bool   `gorm:"not null;default:false"`
		InBookmarks bool   `gorm:"not null;default:false"`
		Rate        *int   `gorm:"type:smallint;check:chk_relation_rate,rate BETWEEN 1 AND 5"`
	}
)

// IsOwnedBy reports whether u is the recorded owner of the book.
func (b *Book) IsOwnedBy(u *User) bool {
	return u != nil && b.OwnerID != nil && *b.OwnerID == u.ID
}
