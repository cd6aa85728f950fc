package service

import (
	"net/http"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
)

func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// CanModifyBook is the owner-or-staff-or-read-only policy. A nil actor is anonymous.
func CanModifyBook(method string, actor *models.User, book *models.Book) bool {
	if IsSafeMethod(method) {
		return true
	}
	if actor == nil {
		return false
	}
	return actor.IsStaff || book.IsOwnedBy(actor)
}
