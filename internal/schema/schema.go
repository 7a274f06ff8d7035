// Package schema validates section documents against JSON schemas before they
// are written. The schemas mirror the record types in package section; list
// sections additionally carry their cap as maxItems so an oversized document
// sent to the replace endpoint is rejected instead of stored.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/section"
)

func str() map[string]any { return map[string]any{"type": "string"} }

func object(props map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
}

func stringProps(fields ...string) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f] = str()
	}
	return object(props)
}

var itemSchemas = map[section.Name]map[string]any{
	section.PersonalDetails: stringProps("name", "email", "location", "description", "avatar", "username"),
	section.Introduction: object(map[string]any{
		"heading":    str(),
		"subheading": str(),
		"paragraphs": map[string]any{"type": "array", "items": str()},
		"tags":       map[string]any{"type": "array", "items": str()},
	}),
	section.Experience:     stringProps("src", "title", "company", "duration"),
	section.Projects:       stringProps("src", "title", "description", "href"),
	section.GitHub:         stringProps("username"),
	section.Education:      stringProps("title", "institution", "duration", "description"),
	section.Stack:          stringProps("src", "name", "description"),
	section.Certifications: stringProps("title", "institution", "duration", "description"),
	section.Awards: object(map[string]any{
		"name":        str(),
		"year":        map[string]any{"type": "integer", "minimum": 0},
		"description": str(),
	}),
	section.Languages: stringProps("name", "proficiency"),
	section.Summary: object(map[string]any{
		"paragraph":   str(),
		"socialLinks": stringProps("linkedin", "twitter", "github"),
	}),
	section.PasswordProtection: object(map[string]any{
		"enabled":     map[string]any{"type": "boolean"},
		"password":    str(),
		"passwordSet": map[string]any{"type": "boolean"},
	}),
}

// Validator holds one compiled schema per section.
type Validator struct {
	schemas map[section.Name]*gojsonschema.Schema
}

// New compiles the schema of every known section.
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[section.Name]*gojsonschema.Schema, len(itemSchemas))}

	for _, name := range section.SettingsOrder {
		item, ok := itemSchemas[name]
		if !ok {
			return nil, fmt.Errorf("schema: no schema for section %s", name)
		}

		doc := item
		if def := section.MustLookup(name); def.Kind == section.KindList {
			doc = map[string]any{
				"type":     "array",
				"maxItems": def.Max,
				"items":    item,
			}
		}

		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("schema: compiling %s: %w", name, err)
		}
		v.schemas[name] = compiled
	}

	return v, nil
}

// Validate checks a raw JSON document for the named section. Violations are
// returned as a validation AppError listing every failing path.
func (v *Validator) Validate(name section.Name, doc []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return apperror.NotFound("section", name.String())
	}

	res, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return apperror.ValidationFailed("document", fmt.Sprintf("document is not valid JSON: %v", err))
	}
	if res.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return apperror.ValidationFailed("document", fmt.Sprintf("%s: %s", name, strings.Join(msgs, "; ")))
}
