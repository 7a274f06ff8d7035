package section

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refolio/refolio/internal/apperror"
)

func TestObject_SetMergesOneField(t *testing.T) {
	o := NewObject[PersonalDetailsField, PersonalDetailsRecord](PersonalDetails)
	require.NoError(t, o.Load([]byte(`{"name":"Ada","location":"London"}`)))

	require.NoError(t, o.Set(PersonalLocation, "Paris"))

	assert.Equal(t, PersonalDetailsRecord{Name: "Ada", Location: "Paris"}, o.Value())
}

func TestObject_VisibleWhenAnyFieldSet(t *testing.T) {
	tests := []struct {
		name string
		e    Editor
		op   Op
	}{
		{"personal details", NewObject[PersonalDetailsField, PersonalDetailsRecord](PersonalDetails), Op{Kind: OpSet, Field: "location", Value: "Oslo"}},
		{"introduction tags", NewObject[IntroductionField, IntroductionRecord](Introduction), Op{Kind: OpSet, Field: "tags", Value: "go, sql"}},
		{"summary link", NewObject[SummaryField, SummaryRecord](Summary), Op{Kind: OpSet, Field: "twitter", Value: "@ada"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.e.Visible())
			require.NoError(t, tt.e.Apply(tt.op))
			assert.True(t, tt.e.Visible())
		})
	}
}

func TestObject_WhitespaceOnlyIsNotContent(t *testing.T) {
	o := NewObject[SummaryField, SummaryRecord](Summary)
	require.NoError(t, o.Set(SummaryParagraph, "   "))
	assert.False(t, o.Visible())
}

func TestObject_IntroductionSplitsLists(t *testing.T) {
	o := NewObject[IntroductionField, IntroductionRecord](Introduction)
	require.NoError(t, o.Set(IntroTags, "go, ,postgres ,  k8s"))
	require.NoError(t, o.Set(IntroParagraphs, "first\n\nsecond\n"))

	v := o.Value()
	assert.Equal(t, []string{"go", "postgres", "k8s"}, v.Tags)
	assert.Equal(t, []string{"first", "second"}, v.Paragraphs)
}

func TestObject_DocumentRoundTrip(t *testing.T) {
	o := NewObject[SummaryField, SummaryRecord](Summary)
	require.NoError(t, o.Set(SummaryParagraph, "Hello"))
	require.NoError(t, o.Set(SummaryLinkedIn, "in/ada"))

	doc, err := o.Document()
	require.NoError(t, err)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(doc, &stored))
	assert.Equal(t, "Hello", stored["paragraph"])

	other := NewObject[SummaryField, SummaryRecord](Summary)
	require.NoError(t, other.Load(doc))
	assert.Equal(t, o.Value(), other.Value())
}

func TestObject_RejectsListOps(t *testing.T) {
	o := NewObject[GitHubField, GitHubRecord](GitHub)
	for _, kind := range []OpKind{OpAdd, OpRemoveLast} {
		err := o.Apply(Op{Kind: kind})
		assert.True(t, errors.Is(err, apperror.ErrValidation), kind)
	}
	err := o.Apply(Op{Kind: OpSet, Field: "token", Value: "x"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestObject_SetMediaOnAvatar(t *testing.T) {
	o := NewObject[PersonalDetailsField, PersonalDetailsRecord](PersonalDetails)
	require.NoError(t, o.SetMedia(0, "https://cdn/me.png"))
	assert.Equal(t, "https://cdn/me.png", o.Value().Avatar)

	s := NewObject[SummaryField, SummaryRecord](Summary)
	assert.Error(t, s.SetMedia(0, "https://cdn/me.png"))
}

func TestProtection_NeverVisible(t *testing.T) {
	o := NewObject[ProtectionField, ProtectionRecord](PasswordProtection)
	require.NoError(t, o.Set(ProtectionEnabled, "true"))
	require.NoError(t, o.Set(ProtectionPassword, "ax8dr"))
	assert.False(t, o.Visible())
}

func TestProtection_Validate(t *testing.T) {
	tests := []struct {
		name         string
		rec          ProtectionRecord
		keepExisting bool
		wantErr      bool
	}{
		{"disabled without secret", ProtectionRecord{}, false, false},
		{"enabled with secret", ProtectionRecord{Enabled: true, Password: "ax8dr"}, false, false},
		{"enabled blank secret", ProtectionRecord{Enabled: true, Password: "   "}, false, true},
		{"enabled keeps stored secret", ProtectionRecord{Enabled: true}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate(tt.keepExisting)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Contains(t, err.Error(), "Password cannot be empty when enabling protection.")
		})
	}
}

func TestProtection_EnabledMustBeBool(t *testing.T) {
	o := NewObject[ProtectionField, ProtectionRecord](PasswordProtection)
	err := o.Set(ProtectionEnabled, "maybe")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestPersonalDetails_UsernameNotPersisted(t *testing.T) {
	o := NewObject[PersonalDetailsField, PersonalDetailsRecord](PersonalDetails)
	require.NoError(t, o.Set(PersonalName, "Ada"))
	require.NoError(t, o.Set(PersonalUsername, "ada"))

	doc, err := o.Document()
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "username")
	assert.Equal(t, "ada", o.Value().Username)

	o2 := NewObject[PersonalDetailsField, PersonalDetailsRecord](PersonalDetails)
	require.NoError(t, o2.Set(PersonalUsername, "ada"))
	assert.False(t, o2.Visible())
}
