package section

import (
	"encoding/json"
	"fmt"

	"github.com/refolio/refolio/internal/apperror"
)

// ObjectState is the settings view of an object section.
type ObjectState[R any] struct {
	Value R `json:"value"`
}

// Object is the editor for a singleton-object section. Set merges one field
// into the current value; the whole value is written on save.
type Object[F Field, R Record[F, R]] struct {
	name  Name
	value R
}

func NewObject[F Field, R Record[F, R]](name Name) *Object[F, R] {
	return &Object[F, R]{name: name}
}

func (o *Object[F, R]) Name() Name { return o.name }

func (o *Object[F, R]) Load(doc []byte) error {
	var zero R
	o.value = zero
	if isAbsent(doc) {
		return nil
	}

	var v R
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("section %s: decoding stored value: %w", o.name, err)
	}
	o.value = v
	return nil
}

// Set replaces one field, leaving the rest untouched.
func (o *Object[F, R]) Set(field F, value string) error {
	next, err := o.value.With(field, value)
	if err != nil {
		return err
	}
	o.value = next
	return nil
}

// Value returns the current (unnormalised) value.
func (o *Object[F, R]) Value() R { return o.value }

// Replace swaps in a whole value.
func (o *Object[F, R]) Replace(v R) { o.value = v }

func (o *Object[F, R]) Apply(op Op) error {
	if op.Kind != OpSet && op.Kind != OpUpdate {
		return unsupportedOp(o.name, op.Kind)
	}
	var zero R
	field, err := ParseField(zero.Fields(), op.Field)
	if err != nil {
		return err
	}
	return o.Set(field, op.Value)
}

func (o *Object[F, R]) Document() ([]byte, error) {
	return json.Marshal(o.value.Normalized())
}

func (o *Object[F, R]) State() any {
	return ObjectState[R]{Value: o.value}
}

func (o *Object[F, R]) Visible() bool { return o.value.Complete() }

func (o *Object[F, R]) Public() any { return o.value.Normalized() }

func (o *Object[F, R]) SetMedia(_ int, url string) error {
	m, ok := any(o.value).(mediaRecord[F])
	if !ok {
		return apperror.ValidationFailed("section", fmt.Sprintf("%s carries no media", o.name))
	}
	return o.Set(m.MediaField(), url)
}
