package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
)

const (
	minRate = 1
	maxRate = 5
)

type Relations struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewRelations(db *gorm.DB, l *zap.SugaredLogger) *Relations {
	return &Relations{
		db:     db,
		logger: l,
	}
}

// Upsert returns the caller's relation to the book, creating a default one on first use.
func (s *Relations) Upsert(ctx context.Context, user *models.User, bookID uint64) (*models.UserBookRelation, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}

	rel := models.UserBookRelation{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertRelation(tx, user.ID, bookID, &rel)
	})
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// Update upserts the relation and applies the supplied fields. The request is
// validated as a whole first, so an invalid rate leaves every field untouched.
func (s *Relations) Update(ctx context.Context, user *models.User, bookID uint64, req models.RelationReq) (*models.UserBookRelation, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}

	changes := map[string]interface{}{}
	if req.Like != nil {
		changes["like"] = *req.Like
	}
	if req.InBookmarks != nil {
		changes["in_bookmarks"] = *req.InBookmarks
	}
	if req.Rate.Set {
		if req.Rate.Value == nil {
			changes["rate"] = nil
		} else {
			if *req.Rate.Value < minRate || *req.Rate.Value > maxRate {
				return nil, invalid("rate", fmt.Sprintf("\"%d\" is not a valid choice.", *req.Rate.Value))
			}
			changes["rate"] = *req.Rate.Value
		}
	}

	rel := models.UserBookRelation{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertRelation(tx, user.ID, bookID, &rel); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&rel).Omit(clause.Associations).Updates(changes).Error; err != nil {
			return errors.Wrap(err, "update relation")
		}
		return tx.First(&rel, rel.ID).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debugw("relation updated", "user_id", user.ID, "book_id", bookID, "fields", len(changes))
	return &rel, nil
}

// upsertRelation relies on the (user_id, book_id) unique index: concurrent first
// writers race on the insert, the losers do nothing and read the winner's row.
func upsertRelation(tx *gorm.DB, userID, bookID uint64, rel *models.UserBookRelation) error {
	var count int64
	if err := tx.Model(&models.Book{}).Where("id = ?", bookID).Count(&count).Error; err != nil {
		return errors.Wrap(err, "check book")
	}
	if count == 0 {
		return ErrBookNotFound
	}

	res := tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
			DoNothing: true,
		}).
		Create(&models.UserBookRelation{UserID: userID, BookID: bookID})
	if res.Error != nil {
		return errors.Wrap(res.Error, "insert relation")
	}

	if err := tx.Where("user_id = ? AND book_id = ?", userID, bookID).First(rel).Error; err != nil {
		return errors.Wrap(err, "get relation")
	}
	return nil
}
