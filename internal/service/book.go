package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
)

var (
	// decimal(7,2) leaves five digits before the point
	maxPrice = decimal.NewFromInt(100000)

	orderingColumns = map[string]string{
		"price":       "b.price",
		"author_name": "b.author_name",
	}

	likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

type Books struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewBooks(db *gorm.DB, l *zap.SugaredLogger) *Books {
	return &Books{
		db:     db,
		logger: l,
	}
}

// BookFilter is the composable list query: exact price, substring search and ordering.
type BookFilter struct {
	Price    *decimal.Decimal
	Search   string
	Ordering string
}

func ParseBookFilter(price, search, ordering string) (BookFilter, error) {
	f := BookFilter{
		Search:   strings.TrimSpace(search),
		Ordering: ordering,
	}
	if price != "" {
		p, err := decimal.NewFromString(price)
		if err != nil {
			return BookFilter{}, invalid("price", "Enter a number.")
		}
		f.Price = &p
	}
	return f, nil
}

// orderBy maps "price,-author_name" style input onto columns. Unknown fields are
// skipped and the id always breaks ties, so equal keys keep insertion order.
func (f BookFilter) orderBy() []string {
	clauses := make([]string, 0, 3)
	for _, raw := range strings.Split(f.Ordering, ",") {
		field := strings.TrimSpace(raw)
		direction := "ASC"
		if strings.HasPrefix(field, "-") {
			direction = "DESC"
			field = field[1:]
		}
		column, ok := orderingColumns[field]
		if !ok {
			continue
		}
		clauses = append(clauses, column+" "+direction)
	}
	return append(clauses, "b.id ASC")
}

func (s *Books) List(ctx context.Context, f BookFilter) ([]models.Book, error) {
	q := squirrel.
		Select("b.id", "b.created_at", "b.updated_at", "b.name", "b.price", "b.author_name", "b.owner_id").
		From("books b").
		OrderBy(f.orderBy()...)

	if f.Price != nil {
		q = q.Where(squirrel.Eq{"b.price": *f.Price})
	}
	if f.Search != "" {
		q = q.Where(s.searchPredicate(f.Search))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	books := make([]models.Book, 0)
	res := s.db.WithContext(ctx).Raw(sql, args...).Scan(&books)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}

	return books, nil
}

// searchPredicate matches term anywhere in the name or the author, ignoring case.
// sqlite gets the ulower function registered by the db package.
func (s *Books) searchPredicate(term string) squirrel.Sqlizer {
	if s.db.Dialector.Name() == "postgres" {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		return squirrel.Or{
			squirrel.Expr(`b.name ILIKE ? ESCAPE '\'`, pattern),
			squirrel.Expr(`b.author_name ILIKE ? ESCAPE '\'`, pattern),
		}
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	return squirrel.Or{
		squirrel.Expr(`ulower(b.name) LIKE ? ESCAPE '\'`, pattern),
		squirrel.Expr(`ulower(b.author_name) LIKE ? ESCAPE '\'`, pattern),
	}
}

func (s *Books) Get(ctx context.Context, id uint64) (*models.Book, error) {
	return findBook(s.db.WithContext(ctx), id)
}

func (s *Books) Create(ctx context.Context, actor *models.User, req models.BookReq) (*models.Book, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if err := validateBook(req, true); err != nil {
		return nil, err
	}

	ownerID := actor.ID
	model := models.Book{
		Name:       *req.Name,
		Price:      *req.Price,
		AuthorName: *req.AuthorName,
		OwnerID:    &ownerID,
	}

	res := s.db.WithContext(ctx).Omit("Owner").Create(&model)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "create book")
	}

	s.logger.Infow("book created", "book_id", model.ID, "owner_id", ownerID)
	return &model, nil
}

// Update applies a PUT (every field required) or a PATCH (only the supplied fields).
func (s *Books) Update(ctx context.Context, method string, actor *models.User, id uint64, req models.BookReq) (*models.Book, error) {
	var book *models.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = findBook(tx, id)
		if err != nil {
			return err
		}
		if !CanModifyBook(method, actor, book) {
			return ErrPermissionDenied
		}
		if err := validateBook(req, method == http.MethodPut); err != nil {
			return err
		}

		changes := map[string]interface{}{}
		if req.Name != nil {
			changes["name"] = *req.Name
		}
		if req.Price != nil {
			changes["price"] = *req.Price
		}
		if req.AuthorName != nil {
			changes["author_name"] = *req.AuthorName
		}
		if len(changes) == 0 {
			return nil
		}

		if err := tx.Model(book).Omit("Owner").Updates(changes).Error; err != nil {
			return errors.Wrap(err, "update book")
		}
		book, err = findBook(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return book, nil
}

// Delete removes the book together with every relation pointing at it.
func (s *Books) Delete(ctx context.Context, method string, actor *models.User, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := findBook(tx, id)
		if err != nil {
			return err
		}
		if !CanModifyBook(method, actor, book) {
			return ErrPermissionDenied
		}

		if err := tx.Where("book_id = ?", id).Delete(&models.UserBookRelation{}).Error; err != nil {
			return errors.Wrap(err, "delete relations")
		}
		if err := tx.Delete(&models.Book{}, id).Error; err != nil {
			return errors.Wrap(err, "delete book")
		}
		return nil
	})
}

func findBook(tx *gorm.DB, id uint64) (*models.Book, error) {
	book := models.Book{}
	res := tx.First(&book, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, errors.Wrap(res.Error, "get book")
	}
	return &book, nil
}

func validateBook(req models.BookReq, full bool) error {
	if err := ValidateStruct(&req); err != nil {
		return err
	}
	if full {
		if req.Name == nil {
			return invalid("name", "This field is required.")
		}
		if req.Price == nil {
			return invalid("price", "This field is required.")
		}
		if req.AuthorName == nil {
			return invalid("author_name", "This field is required.")
		}
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return invalid("name", "This field may not be blank.")
	}
	if req.AuthorName != nil && strings.TrimSpace(*req.AuthorName) == "" {
		return invalid("author_name", "This field may not be blank.")
	}
	if req.Price != nil {
		return validatePrice(*req.Price)
	}
	return nil
}

func validatePrice(p decimal.Decimal) error {
	switch {
	case p.IsNegative():
		return invalid("price", "Ensure this value is greater than or equal to 0.")
	case !p.Equal(p.Truncate(2)):
		return invalid("price", "Ensure that there are no more than 2 decimal places.")
	case p.GreaterThanOrEqual(maxPrice):
		return invalid("price", "Ensure that there are no more than 7 digits in total.")
	}
	return nil
}
