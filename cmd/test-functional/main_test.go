//go:build functional

package test_functional

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type BookResp struct {
	ID         uint64  `json:"id"`
	Name       string  `json:"name"`
	Price      string  `json:"price"`
	AuthorName string  `json:"author_name"`
	Owner      *uint64 `json:"owner"`
}

type RelationResp struct {
	Book        uint64 `json:"book"`
	Like        bool   `json:"like"`
	InBookmarks bool   `json:"in_bookmarks"`
	Rate        *int   `json:"rate"`
}

func TestRegister(t *testing.T) {
	u := AppBaseURL
	u.Path = "/auth/register"

	t.Run("successful register", func(t *testing.T) {
		defer FlushDB()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		type Resp struct {
			Token string `json:"token"`
		}

		resp, err := resty.New().
			R().
			SetHeader("Content-Type", "application/json").
			SetContext(ctx).
			SetResult(&Resp{}).
			SetBody(`
			{"email": "test@gmail.com", "password": "111111111111"}
		`).
			Post(u.String())
		assert.Nil(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode())

		got, ok := resp.Result().(*Resp)
		assert.True(t, ok)
		assert.NotEmpty(t, got.Token)

		var (
			id    uint64
			token string
		)
		err = DBConn.QueryRow(ctx, "SELECT id, token FROM users WHERE token=$1", got.Token).Scan(&id, &token)
		assert.Nil(t, err)

		assert.Equal(t, token, got.Token)
	})

	t.Run("bad body", func(t *testing.T) {
		defer FlushDB()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		resp, err := resty.New().
			R().
			SetHeader("Content-Type", "application/json").
			SetContext(ctx).
			SetBody(`
			{"something": "???"}
		`).
			Post(u.String())
		assert.Nil(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})
}

func TestBooksCrud(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	ownerToken, err := register(ctx, "owner@gmail.com")
	require.NoError(t, err)
	otherToken, err := register(ctx, "other@gmail.com")
	require.NoError(t, err)

	cl := resty.New()

	create := func(name, price, author string) BookResp {
		resp, err := cl.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Token", ownerToken).
			SetBody(map[string]string{"name": name, "price": price, "author_name": author}).
			SetResult(&BookResp{}).
			Post(endpoint("/books/"))
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode())
		return *resp.Result().(*BookResp)
	}
	book1 := create("Test book 1", "25", "Author 1")
	book2 := create("Test book 2", "55", "Author 5")
	book3 := create("Test book Author 1", "55", "Author 2")

	var ownerID uint64
	err = DBConn.QueryRow(ctx, "SELECT id FROM users WHERE email=$1", "owner@gmail.com").Scan(&ownerID)
	require.NoError(t, err)
	assert.Equal(t, &ownerID, book1.Owner)
	assert.Equal(t, "25.00", book1.Price)

	list := func(query map[string]string) []uint64 {
		resp, err := cl.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetResult(&[]BookResp{}).
			Get(endpoint("/books/"))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())

		books := *resp.Result().(*[]BookResp)
		ids := make([]uint64, len(books))
		for i, b := range books {
			ids[i] = b.ID
		}
		return ids
	}

	assert.Equal(t, []uint64{book1.ID, book2.ID, book3.ID}, list(nil))
	assert.Equal(t, []uint64{book2.ID, book3.ID}, list(map[string]string{"price": "55"}))
	assert.Equal(t, []uint64{book1.ID, book3.ID}, list(map[string]string{"search": "Author 1"}))
	assert.Equal(t, []uint64{book1.ID, book3.ID, book2.ID}, list(map[string]string{"ordering": "author_name"}))

	bookURL := endpoint("/books/" + strconv.FormatUint(book1.ID, 10))

	t.Run("stranger cannot update", func(t *testing.T) {
		resp, err := cl.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Token", otherToken).
			SetBody(`{"name": "Stolen"}`).
			Patch(bookURL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
	})

	t.Run("owner updates", func(t *testing.T) {
		resp, err := cl.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Token", ownerToken).
			SetBody(`{"name": "Renamed"}`).
			SetResult(&BookResp{}).
			Patch(bookURL)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, "Renamed", resp.Result().(*BookResp).Name)
	})

	t.Run("owner deletes", func(t *testing.T) {
		resp, err := cl.R().
			SetContext(ctx).
			SetHeader("X-Token", ownerToken).
			Delete(bookURL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode())

		resp, err = cl.R().SetContext(ctx).Get(bookURL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	})
}

func TestRelations(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	token, err := register(ctx, "reader@gmail.com")
	require.NoError(t, err)

	var bookID uint64
	err = DBConn.QueryRow(ctx,
		"INSERT INTO books (created_at, updated_at, name, price, author_name) VALUES (now(), now(), 'name', 10, 'author') RETURNING id",
	).Scan(&bookID)
	require.NoError(t, err)

	relURL := endpoint("/relations/" + strconv.FormatUint(bookID, 10))
	patch := func(body string) *resty.Response {
		resp, err := resty.New().
			R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Token", token).
			SetBody(body).
			SetResult(&RelationResp{}).
			Patch(relURL)
		require.NoError(t, err)
		return resp
	}

	resp := patch(`{"like": true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, RelationResp{Book: bookID, Like: true}, *resp.Result().(*RelationResp))

	resp = patch(`{"rate": 4, "in_bookmarks": true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	rate := 4
	assert.Equal(t, RelationResp{Book: bookID, Like: true, InBookmarks: true, Rate: &rate}, *resp.Result().(*RelationResp))

	resp = patch(`{"rate": 6}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())

	var count int
	err = DBConn.QueryRow(ctx, "SELECT count(*) FROM user_book_relations WHERE book_id=$1", bookID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRelationsConcurrentFirstWrite(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	token, err := register(ctx, "racer@gmail.com")
	require.NoError(t, err)

	var bookID uint64
	err = DBConn.QueryRow(ctx,
		"INSERT INTO books (created_at, updated_at, name, price, author_name) VALUES (now(), now(), 'name', 10, 'author') RETURNING id",
	).Scan(&bookID)
	require.NoError(t, err)

	relURL := endpoint("/relations/" + strconv.FormatUint(bookID, 10))

	var wg sync.WaitGroup
	statuses := make([]int, 16)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := resty.New().
				R().
				SetContext(ctx).
				SetHeader("Content-Type", "application/json").
				SetHeader("X-Token", token).
				SetBody(`{"like": true}`).
				Patch(relURL)
			if assert.NoError(t, err) {
				statuses[i] = resp.StatusCode()
			}
		}(i)
	}
	wg.Wait()

	for _, status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}

	var count int
	err = DBConn.QueryRow(ctx, "SELECT count(*) FROM user_book_relations WHERE book_id=$1", bookID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
