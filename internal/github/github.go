// Package github fetches the pinned repositories shown by the GitHub section.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const defaultEndpoint = "https://api.github.com/graphql"

// ErrNoToken is returned when no API token is configured; the GitHub section
// then stays hidden.
var ErrNoToken = errors.New("github: no API token configured")

type Repository struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	URL             string `json:"url"`
	Stars           int    `json:"stars"`
	Forks           int    `json:"forks"`
	PrimaryLanguage string `json:"primaryLanguage,omitempty"`
	LanguageColor   string `json:"languageColor,omitempty"`
}

// Client calls the GraphQL API with a bearer token.
type Client struct {
	http     *http.Client
	endpoint string
}

// NewClient returns a client authenticated with token. An empty token yields
// a client whose every call returns ErrNoToken.
func NewClient(token string) *Client {
	if token == "" {
		return &Client{}
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = 10 * time.Second
	return &Client{http: httpClient, endpoint: defaultEndpoint}
}

// WithEndpoint points the client at another GraphQL URL (tests, GHES).
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

const pinnedQuery = `query($login: String!) {
  user(login: $login) {
    pinnedItems(first: 6, types: REPOSITORY) {
      nodes {
        ... on Repository {
          name
          description
          url
          stargazerCount
          forkCount
          primaryLanguage { name color }
        }
      }
    }
  }
}`

type pinnedResponse struct {
	Data struct {
		User *struct {
			PinnedItems struct {
				Nodes []struct {
					Name            string `json:"name"`
					Description     string `json:"description"`
					URL             string `json:"url"`
					StargazerCount  int    `json:"stargazerCount"`
					ForkCount       int    `json:"forkCount"`
					PrimaryLanguage *struct {
						Name  string `json:"name"`
						Color string `json:"color"`
					} `json:"primaryLanguage"`
				} `json:"nodes"`
			} `json:"pinnedItems"`
		} `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Pinned returns up to six pinned repositories of login. An unknown login
// yields an empty list, not an error.
func (c *Client) Pinned(ctx context.Context, login string) ([]Repository, error) {
	if c.http == nil {
		return nil, ErrNoToken
	}

	body, err := json.Marshal(map[string]any{
		"query":     pinnedQuery,
		"variables": map[string]string{"login": login},
	})
	if err != nil {
		return nil, fmt.Errorf("github: encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: calling GraphQL API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github: GraphQL API returned status %d", resp.StatusCode)
	}

	var out pinnedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("github: decoding response: %w", err)
	}
	if out.Data.User == nil {
		return []Repository{}, nil
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("github: %s", out.Errors[0].Message)
	}

	repos := make([]Repository, 0, len(out.Data.User.PinnedItems.Nodes))
	for _, n := range out.Data.User.PinnedItems.Nodes {
		if n.Name == "" {
			continue
		}
		r := Repository{
			Name:        n.Name,
			Description: n.Description,
			URL:         n.URL,
			Stars:       n.StargazerCount,
			Forks:       n.ForkCount,
		}
		if n.PrimaryLanguage != nil {
			r.PrimaryLanguage = n.PrimaryLanguage.Name
			r.LanguageColor = n.PrimaryLanguage.Color
		}
		repos = append(repos, r)
	}
	return repos, nil
}
