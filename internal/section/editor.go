package section

import (
	"bytes"
	"fmt"

	"github.com/refolio/refolio/internal/apperror"
)

// Editor is the type-erased view of a List or Object that services and
// handlers work with. It is not safe for concurrent use; every request builds
// its own.
type Editor interface {
	Name() Name

	// Load replaces the editor state with the stored document. A nil or empty
	// document yields the default state. On a decode error the editor is left
	// in its default state and the error is returned for logging.
	Load(doc []byte) error

	// Apply performs one local edit.
	Apply(op Op) error

	// Document returns the persisted form: display indices stripped and
	// normalisation applied.
	Document() ([]byte, error)

	// State is what the settings page shows for this section.
	State() any

	// Visible reports whether the display predicate holds.
	Visible() bool

	// Public is the content rendered on the profile page.
	Public() any

	// SetMedia writes an uploaded media URL into the record at index (1-based;
	// ignored by object sections).
	SetMedia(index int, url string) error
}

// OpKind names an editor operation accepted over HTTP.
type OpKind string

const (
	OpAdd        OpKind = "add"
	OpRemoveLast OpKind = "remove_last"
	OpUpdate     OpKind = "update"
	OpSet        OpKind = "set"
)

// Op is one edit in a batch.
type Op struct {
	Kind  OpKind `json:"op"`
	Index int    `json:"index,omitempty"`
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
}

// ApplyAll applies ops in order and stops at the first failure.
func ApplyAll(e Editor, ops []Op) error {
	for i, op := range ops {
		if err := e.Apply(op); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op.Kind, err)
		}
	}
	return nil
}

func isAbsent(doc []byte) bool {
	doc = bytes.TrimSpace(doc)
	return len(doc) == 0 || bytes.Equal(doc, []byte("null"))
}

func unsupportedOp(name Name, kind OpKind) error {
	return apperror.ValidationFailed("op", fmt.Sprintf("%s does not support %q", name, kind))
}
