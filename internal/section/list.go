package section

import (
	"encoding/json"
	"fmt"

	"github.com/refolio/refolio/internal/apperror"
)

// Entry is a list record paired with its display index. The index is derived
// from position on every read and is never persisted.
type Entry[R any] struct {
	Index  int `json:"index"`
	Record R   `json:"record"`
}

// ListState is the settings view of a list section.
type ListState[R any] struct {
	Rows      []Entry[R] `json:"rows"`
	Max       int        `json:"max"`
	CanAdd    bool       `json:"canAdd"`
	CanRemove bool       `json:"canRemove"`
}

// List is the editor for a row-list section.
//
// It always holds between 1 and max records. Add at the cap and RemoveLast
// at a single record are no-ops, mirroring a disabled control.
type List[F Field, R Record[F, R]] struct {
	name Name
	max  int
	rows []R
}

// NewList returns a list editor holding one blank record.
func NewList[F Field, R Record[F, R]](name Name, max int) *List[F, R] {
	l := &List[F, R]{name: name, max: max}
	l.reset()
	return l
}

func (l *List[F, R]) reset() {
	var blank R
	l.rows = []R{blank}
}

func (l *List[F, R]) Name() Name { return l.name }

func (l *List[F, R]) Load(doc []byte) error {
	l.reset()
	if isAbsent(doc) {
		return nil
	}

	var rows []R
	if err := json.Unmarshal(doc, &rows); err != nil {
		return fmt.Errorf("section %s: decoding stored rows: %w", l.name, err)
	}
	if len(rows) > 0 {
		l.rows = rows
	}
	return nil
}

// Len returns the number of records.
func (l *List[F, R]) Len() int { return len(l.rows) }

// Max returns the section cap.
func (l *List[F, R]) Max() int { return l.max }

func (l *List[F, R]) CanAdd() bool { return len(l.rows) < l.max }

func (l *List[F, R]) CanRemove() bool { return len(l.rows) > 1 }

// Add appends a blank record. It reports false at the cap.
func (l *List[F, R]) Add() bool {
	if !l.CanAdd() {
		return false
	}
	var blank R
	l.rows = append(l.rows, blank)
	return true
}

// RemoveLast drops the highest-index record. It reports false when only one
// record is left.
func (l *List[F, R]) RemoveLast() bool {
	if !l.CanRemove() {
		return false
	}
	l.rows = l.rows[:len(l.rows)-1]
	return true
}

// Update replaces one field of the record at the 1-based index.
func (l *List[F, R]) Update(index int, field F, value string) error {
	if index < 1 || index > len(l.rows) {
		return apperror.ValidationFailed("index", fmt.Sprintf("%s has no record %d", l.name, index))
	}
	next, err := l.rows[index-1].With(field, value)
	if err != nil {
		return err
	}
	l.rows[index-1] = next
	return nil
}

// Entries returns the records with display indices 1..n.
func (l *List[F, R]) Entries() []Entry[R] {
	out := make([]Entry[R], len(l.rows))
	for i, r := range l.rows {
		out[i] = Entry[R]{Index: i + 1, Record: r}
	}
	return out
}

// Rows returns the persisted form of the records.
func (l *List[F, R]) Rows() []R {
	out := make([]R, len(l.rows))
	for i, r := range l.rows {
		out[i] = r.Normalized()
	}
	return out
}

func (l *List[F, R]) Apply(op Op) error {
	switch op.Kind {
	case OpAdd:
		l.Add()
		return nil
	case OpRemoveLast:
		l.RemoveLast()
		return nil
	case OpUpdate:
		var zero R
		field, err := ParseField(zero.Fields(), op.Field)
		if err != nil {
			return err
		}
		return l.Update(op.Index, field, op.Value)
	default:
		return unsupportedOp(l.name, op.Kind)
	}
}

func (l *List[F, R]) Document() ([]byte, error) {
	return json.Marshal(l.Rows())
}

func (l *List[F, R]) State() any {
	return ListState[R]{
		Rows:      l.Entries(),
		Max:       l.max,
		CanAdd:    l.CanAdd(),
		CanRemove: l.CanRemove(),
	}
}

// Visible holds when at least one record satisfies the section predicate.
func (l *List[F, R]) Visible() bool {
	for _, r := range l.rows {
		if r.Complete() {
			return true
		}
	}
	return false
}

func (l *List[F, R]) Public() any { return l.Rows() }

func (l *List[F, R]) SetMedia(index int, url string) error {
	var zero R
	m, ok := any(zero).(mediaRecord[F])
	if !ok {
		return apperror.ValidationFailed("section", fmt.Sprintf("%s records carry no media", l.name))
	}
	return l.Update(index, m.MediaField(), url)
}
