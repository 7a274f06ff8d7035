// Package storage holds uploaded media (project covers, logos, avatars).
//
// A Store takes a namespaced key and the file bytes and returns the stored
// path; PublicURL turns that path into a URL a browser can fetch. Keys are
// built by the upload service, e.g. "projects/<owner>/2-cover.png".
package storage

import (
	"context"
	"path"
	"regexp"
	"strings"
)

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PublicURL(storedPath string) string
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename reduces a client supplied filename to a single safe path
// element. An empty result becomes "file".
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, ".-")
	if name == "" {
		return "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}
