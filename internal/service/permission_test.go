package service

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
)

func TestCanModifyBook(t *testing.T) {
	ownerID := uint64(1)
	book := &models.Book{OwnerID: &ownerID}
	orphan := &models.Book{}

	owner := &models.User{Model: models.Model{ID: 1}}
	stranger := &models.User{Model: models.Model{ID: 2}}
	staff := &models.User{Model: models.Model{ID: 3}, IsStaff: true}

	tests := []struct {
		name   string
		method string
		actor  *models.User
		book   *models.Book
		want   bool
	}{
		{"anonymous read", http.MethodGet, nil, book, true},
		{"anonymous head", http.MethodHead, nil, book, true},
		{"anonymous options", http.MethodOptions, nil, book, true},
		{"anonymous update", http.MethodPut, nil, book, false},
		{"anonymous delete", http.MethodDelete, nil, book, false},
		{"owner update", http.MethodPatch, owner, book, true},
		{"owner delete", http.MethodDelete, owner, book, true},
		{"stranger read", http.MethodGet, stranger, book, true},
		{"stranger update", http.MethodPut, stranger, book, false},
		{"stranger delete", http.MethodDelete, stranger, book, false},
		{"staff update", http.MethodPatch, staff, book, true},
		{"staff delete orphan", http.MethodDelete, staff, orphan, true},
		{"former owner on orphan", http.MethodPatch, owner, orphan, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanModifyBook(tt.method, tt.actor, tt.book))
		})
	}
}
