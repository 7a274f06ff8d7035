// Package section models the editable content units of a re-folio profile.
//
// Every section is one of two shapes:
//
//   - a list section: an ordered run of uniformly shaped records, capped at a
//     per-section maximum and never shorter than one record;
//   - an object section: a single fixed-shape record.
//
// Both shapes are generic over a closed field enumeration (one string type
// per section) so an edit naming a field the section does not have fails at
// compile time inside this module and as a validation error at the HTTP edge.
//
// The package holds no I/O. It turns stored JSON documents into editor state,
// applies edits, produces the persisted form, and answers the display
// predicate. The service layer owns loading and saving.
package section

import (
	"fmt"

	"github.com/refolio/refolio/internal/apperror"
)

// Name identifies a section in URLs and storage.
type Name string

const (
	PersonalDetails    Name = "personal-details"
	Introduction       Name = "introduction"
	Experience         Name = "experience"
	Projects           Name = "projects"
	GitHub             Name = "github"
	Education          Name = "education"
	Stack              Name = "stack"
	Certifications     Name = "certifications"
	Awards             Name = "awards"
	Languages          Name = "languages"
	Summary            Name = "summary"
	PasswordProtection Name = "password-protection"
)

// Kind distinguishes list sections from object sections.
type Kind string

const (
	KindList   Kind = "list"
	KindObject Kind = "object"
)

// Definition is the static description of one section.
type Definition struct {
	Name    Name
	Heading string
	Kind    Kind
	// Max caps the number of records of a list section. Zero for objects.
	Max int
	// Public is false for sections that never render on the profile page.
	Public bool

	newEditor func() Editor
}

// NewEditor returns a fresh editor in its default state.
func (d Definition) NewEditor() Editor {
	return d.newEditor()
}

var definitions = map[Name]Definition{
	PersonalDetails: {
		Name: PersonalDetails, Heading: "Personal Details", Kind: KindObject, Public: true,
		newEditor: func() Editor { return NewObject[PersonalDetailsField, PersonalDetailsRecord](PersonalDetails) },
	},
	Introduction: {
		Name: Introduction, Heading: "Introduction", Kind: KindObject, Public: true,
		newEditor: func() Editor { return NewObject[IntroductionField, IntroductionRecord](Introduction) },
	},
	Experience: {
		Name: Experience, Heading: "Experience", Kind: KindList, Max: 5, Public: true,
		newEditor: func() Editor { return NewList[ExperienceField, ExperienceRecord](Experience, 5) },
	},
	Projects: {
		Name: Projects, Heading: "Projects", Kind: KindList, Max: 4, Public: true,
		newEditor: func() Editor { return NewList[ProjectField, ProjectRecord](Projects, 4) },
	},
	GitHub: {
		Name: GitHub, Heading: "Github Repositories", Kind: KindObject, Public: true,
		newEditor: func() Editor { return NewObject[GitHubField, GitHubRecord](GitHub) },
	},
	Education: {
		Name: Education, Heading: "Education", Kind: KindList, Max: 4, Public: true,
		newEditor: func() Editor { return NewList[EducationField, EducationRecord](Education, 4) },
	},
	Stack: {
		Name: Stack, Heading: "Stack", Kind: KindList, Max: 8, Public: true,
		newEditor: func() Editor { return NewList[StackField, StackRecord](Stack, 8) },
	},
	Certifications: {
		Name: Certifications, Heading: "Certifications", Kind: KindList, Max: 5, Public: true,
		newEditor: func() Editor { return NewList[CertificationField, CertificationRecord](Certifications, 5) },
	},
	Awards: {
		Name: Awards, Heading: "Awards", Kind: KindList, Max: 5, Public: true,
		newEditor: func() Editor { return NewList[AwardField, AwardRecord](Awards, 5) },
	},
	Languages: {
		Name: Languages, Heading: "Languages", Kind: KindList, Max: 7, Public: true,
		newEditor: func() Editor { return NewList[LanguageField, LanguageRecord](Languages, 7) },
	},
	Summary: {
		Name: Summary, Heading: "Summary", Kind: KindObject, Public: true,
		newEditor: func() Editor { return NewObject[SummaryField, SummaryRecord](Summary) },
	},
	PasswordProtection: {
		Name: PasswordProtection, Heading: "Password Protection", Kind: KindObject,
		newEditor: func() Editor { return NewObject[ProtectionField, ProtectionRecord](PasswordProtection) },
	},
}

// PublicOrder is the fixed order sections render in on the profile page.
var PublicOrder = []Name{
	PersonalDetails,
	Introduction,
	Experience,
	Projects,
	GitHub,
	Education,
	Stack,
	Certifications,
	Awards,
	Languages,
	Summary,
}

// SettingsOrder is the order editors appear in on the settings page.
var SettingsOrder = append(append([]Name{}, PublicOrder...), PasswordProtection)

// Lookup returns the definition for name.
func Lookup(name Name) (Definition, bool) {
	d, ok := definitions[name]
	return d, ok
}

// Parse validates a section name coming from a URL.
func Parse(s string) (Definition, error) {
	d, ok := definitions[Name(s)]
	if !ok {
		return Definition{}, apperror.NotFound("section", s)
	}
	return d, nil
}

func (n Name) String() string { return string(n) }

// MustLookup is Lookup for names known at compile time.
func MustLookup(name Name) Definition {
	d, ok := definitions[name]
	if !ok {
		panic(fmt.Sprintf("section: unknown section %q", name))
	}
	return d
}
