package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/config"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
)

// General owns accounts: registration, login, token lookup and deletion.
type General struct {
	db          *gorm.DB
	logger      *zap.SugaredLogger
	bcryptCost  int
	staffEmails map[string]struct{}
}

func NewGeneral(db *gorm.DB, l *zap.SugaredLogger, cfg *config.Config) *General {
	staff := make(map[string]struct{}, len(cfg.StaffEmails))
	for _, email := range cfg.StaffEmails {
		staff[normalizeEmail(email)] = struct{}{}
	}
	return &General{
		db:          db,
		logger:      l,
		bcryptCost:  cfg.BcryptCost,
		staffEmails: staff,
	}
}

func (s *General) Register(ctx context.Context, email, pass string) (string, error) {
	email = normalizeEmail(email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return "", errors.Wrap(err, "check email")
	}
	if count != 0 {
		return "", ErrUserAlreadyExists
	}

	hash, err := s.bcryptGen(pass)
	if err != nil {
		return "", errors.Wrap(err, "bcryptGen")
	}
	_, isStaff := s.staffEmails[email]
	token := uuid.New().String()
	res := s.db.WithContext(ctx).Create(&models.User{
		Email:    email,
		Password: hash,
		Token:    token,
		IsStaff:  isStaff,
	})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return "", ErrUserAlreadyExists
		}
		return "", errors.Wrap(res.Error, "create user")
	}

	s.logger.Infow("user registered", "email", email, "staff", isStaff)
	return token, nil
}

func (s *General) Login(ctx context.Context, email, pass string) (string, error) {
	user := models.User{}
	res := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return "", ErrLoginUserNotFound
		}
		return "", res.Error
	}

	if err := s.bcryptCheck(user.Password, pass); err != nil {
		return "", ErrLoginPasswordDoesNotMatch
	}

	token := uuid.New().String()
	res = s.db.WithContext(ctx).Model(&user).Update("token", token)
	if res.Error != nil {
		return "", errors.Wrap(res.Error, "update token")
	}

	return token, nil
}

func (s *General) UserByToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	user := models.User{}
	res := s.db.WithContext(ctx).Where("token = ?", token).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, errors.Wrap(res.Error, "find user")
	}
	return &user, nil
}

// DeleteUser removes the account. Owned books survive without an owner and the
// user's relations go with the account.
func (s *General) DeleteUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return ErrUnauthenticated
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Book{}).Where("owner_id = ?", user.ID).Update("owner_id", nil).Error; err != nil {
			return errors.Wrap(err, "release books")
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserBookRelation{}).Error; err != nil {
			return errors.Wrap(err, "delete relations")
		}
		if err := tx.Delete(&models.User{}, user.ID).Error; err != nil {
			return errors.Wrap(err, "delete user")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infow("user deleted", "user_id", user.ID)
	return nil
}

func (s *General) bcryptGen(pass string) (string, error) {
	passwordHashB, err := bcrypt.GenerateFromPassword([]byte(pass), s.bcryptCost)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(passwordHashB), nil
}

func (s *General) bcryptCheck(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
