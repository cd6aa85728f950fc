package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/config"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/db/dbtest"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
)

type fixture struct {
	db        *gorm.DB
	general   *General
	books     *Books
	relations *Relations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := dbtest.New(t)
	l := zap.NewNop().Sugar()
	cfg := &config.Config{
		BcryptCost:  bcrypt.MinCost,
		StaffEmails: []string{"Staff@Example.com"},
	}
	return &fixture{
		db:        conn,
		general:   NewGeneral(conn, l, cfg),
		books:     NewBooks(conn, l),
		relations: NewRelations(conn, l),
	}
}

func (f *fixture) user(t *testing.T, email string) *models.User {
	t.Helper()

	token, err := f.general.Register(context.Background(), email, "password123")
	require.NoError(t, err)
	u, err := f.general.UserByToken(context.Background(), token)
	require.NoError(t, err)
	return u
}

func (f *fixture) book(t *testing.T, owner *models.User, name, price, author string) *models.Book {
	t.Helper()

	b, err := f.books.Create(context.Background(), owner, bookReq(name, price, author))
	require.NoError(t, err)
	return b
}

func bookReq(name, price, author string) models.BookReq {
	p := decimal.RequireFromString(price)
	return models.BookReq{
		Name:       &name,
		Price:      &p,
		AuthorName: &author,
	}
}

func ids(books []models.Book) []uint64 {
	out := make([]uint64, len(books))
	for i := range books {
		out[i] = books[i].ID
	}
	return out
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }
