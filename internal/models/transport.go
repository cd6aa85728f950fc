package models

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

type UserReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type TokenResp struct {
	Token string `json:"token"`
}

// BookReq serves create, full and partial update. Absent fields stay nil.
// There is no owner field: the owner always comes from the caller.
type BookReq struct {
	Name       *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Price      *decimal.Decimal `json:"price"`
	AuthorName *string          `json:"author_name" validate:"omitempty,min=1,max=255"`
}

type BookResp struct {
	ID         uint64  `json:"id"`
	Name       string  `json:"name"`
	Price      string  `json:"price"`
	AuthorName string  `json:"author_name"`
	Owner      *uint64 `json:"owner"`
}

func NewBookResp(b *Book) BookResp {
	return BookResp{
		ID:         b.ID,
		Name:       b.Name,
		Price:      b.Price.StringFixed(2),
		AuthorName: b.AuthorName,
		Owner:      b.OwnerID,
	}
}

type RelationReq struct {
	Like        *bool        `json:"like"`
	InBookmarks *bool        `json:"in_bookmarks"`
	Rate        OptionalRate `json:"rate"`
}

// OptionalRate tells an absent rate apart from an explicit null, which clears it.
type OptionalRate struct {
	Set   bool
	Value *int
}

func (r *OptionalRate) UnmarshalJSON(data []byte) error {
	r.Set = true
	if bytes.Equal(data, []byte("null")) {
		r.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.Value = &v
	return nil
}

type RelationResp struct {
	Book        uint64 `json:"book"`
	Like        bool   `json:"like"`
	InBookmarks bool   `json:"in_bookmarks"`
	Rate        *int   `json:"rate"`
}

func NewRelationResp(r *UserBookRelation) RelationResp {
	return RelationResp{
		Book:        r.BookID,
		Like:        r.Like,
		InBookmarks: r.InBookmarks,
		Rate:        r.Rate,
	}
}
