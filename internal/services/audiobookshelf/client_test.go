package audiobookshelf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{"book":[{"libraryItem":{"id":"li_1","media":{"coverPath":"/covers/1.jpg","metadata":{"title":"The Hobbit","subtitle":"There and Back Again","authorName":"J.R.R. Tolkien"}}}},{"libraryItem":{"id":"li_2","media":{"metadata":{"title":"The Silmarillion","authorName":"J.R.R. Tolkien"}}}}]}`

func TestSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/libraries/lib-1/search", r.URL.Path)
		assert.Equal(t, "The Hobbit", r.URL.Query().Get("q"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", Token: "secret", LibraryID: "lib-1"})
	items, err := client.Search(context.Background(), "The Hobbit", "Tolkien")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, Item{ID: "li_1", Title: "The Hobbit", Subtitle: "There and Back Again", Author: "J.R.R. Tolkien", HasCover: true}, items[0])
	assert.False(t, items[1].HasCover)
}

func TestSearchNotConfigured(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{BaseURL: "http://abs", LibraryID: "x"}).Search(context.Background(), "a", "b")
	require.ErrorIs(t, err, ErrNotConfigured)

	var nilClient *Client
	assert.False(t, nilClient.Configured())
}

func TestSearchErrors(t *testing.T) {
	t.Parallel()

	t.Run("server error is unreachable", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := NewClient(Config{BaseURL: server.URL, Token: "t", LibraryID: "l"}).Search(context.Background(), "a", "")
		require.ErrorIs(t, err, ErrUnreachable)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	})

	t.Run("auth failure is a status error", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := NewClient(Config{BaseURL: server.URL, Token: "t", LibraryID: "l"}).Search(context.Background(), "a", "")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnreachable))
	})

	t.Run("connection refused is unreachable", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := NewClient(Config{BaseURL: url, Token: "t", LibraryID: "l"}).Search(context.Background(), "a", "")
		require.ErrorIs(t, err, ErrUnreachable)
	})
}

func TestFetchCover(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/items/li_1/cover":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Token: "t", LibraryID: "l"})
	data, contentType, err := client.FetchCover(context.Background(), "li_1")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", contentType)

	_, _, err = client.FetchCover(context.Background(), "li_2")
	require.ErrorIs(t, err, ErrCoverNotFound)

	assert.Equal(t, server.URL+"/api/items/li_1/cover", client.CoverURL("li_1"))
}
