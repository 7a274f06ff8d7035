package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinned(t *testing.T) {
	var gotAuth, gotLogin string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Variables map[string]string `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotLogin = body.Variables["login"]

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"user":{"pinnedItems":{"nodes":[
			{"name":"refolio","description":"portfolio","url":"https://github.com/ada/refolio","stargazerCount":12,"forkCount":3,"primaryLanguage":{"name":"Go","color":"#00ADD8"}},
			{},
			{"name":"notes","url":"https://github.com/ada/notes","stargazerCount":0,"forkCount":0,"primaryLanguage":null}
		]}}}}`))
	}))
	defer srv.Close()

	c := NewClient("ghp_token").WithEndpoint(srv.URL)
	repos, err := c.Pinned(context.Background(), "ada")
	require.NoError(t, err)

	assert.Equal(t, "Bearer ghp_token", gotAuth)
	assert.Equal(t, "ada", gotLogin)
	require.Len(t, repos, 2)
	assert.Equal(t, Repository{
		Name: "refolio", Description: "portfolio", URL: "https://github.com/ada/refolio",
		Stars: 12, Forks: 3, PrimaryLanguage: "Go", LanguageColor: "#00ADD8",
	}, repos[0])
	assert.Empty(t, repos[1].PrimaryLanguage)
}

func TestPinned_UnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"user":null},"errors":[{"message":"Could not resolve to a User"}]}`))
	}))
	defer srv.Close()

	repos, err := NewClient("t").WithEndpoint(srv.URL).Pinned(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestPinned_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("t").WithEndpoint(srv.URL).Pinned(context.Background(), "ada")
	assert.Error(t, err)
}

func TestPinned_NoToken(t *testing.T) {
	_, err := NewClient("").Pinned(context.Background(), "ada")
	assert.True(t, errors.Is(err, ErrNoToken))
}
