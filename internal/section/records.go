package section

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/refolio/refolio/internal/apperror"
)

// Field is the constraint satisfied by every per-section field enumeration.
type Field interface {
	~string
}

// Record is implemented by every list row and object value.
//
// With returns a copy with one field replaced; it never mutates the receiver.
// Complete is the display predicate for a single record. Normalized returns
// the form that gets persisted.
type Record[F Field, R any] interface {
	Fields() []F
	With(field F, value string) (R, error)
	Complete() bool
	Normalized() R
}

// mediaRecord is implemented by records that carry an uploaded media URL.
type mediaRecord[F Field] interface {
	MediaField() F
}

// ParseField resolves a field name from the wire against a section's closed
// field set.
func ParseField[F Field](allowed []F, s string) (F, error) {
	for _, f := range allowed {
		if string(f) == s {
			return f, nil
		}
	}
	var zero F
	return zero, apperror.ValidationFailed("field", fmt.Sprintf("unknown field %q", s))
}

func unknownField[F Field](f F) error {
	return apperror.ValidationFailed("field", fmt.Sprintf("unknown field %q", string(f)))
}

func filled(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func anyFilled(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// ---- Experience ----

type ExperienceField string

const (
	ExperienceSrc      ExperienceField = "src"
	ExperienceTitle    ExperienceField = "title"
	ExperienceCompany  ExperienceField = "company"
	ExperienceDuration ExperienceField = "duration"
)

type ExperienceRecord struct {
	Src      string `json:"src"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Duration string `json:"duration"`
}

func (ExperienceRecord) Fields() []ExperienceField {
	return []ExperienceField{ExperienceSrc, ExperienceTitle, ExperienceCompany, ExperienceDuration}
}

func (r ExperienceRecord) With(f ExperienceField, v string) (ExperienceRecord, error) {
	switch f {
	case ExperienceSrc:
		r.Src = v
	case ExperienceTitle:
		r.Title = v
	case ExperienceCompany:
		r.Company = v
	case ExperienceDuration:
		r.Duration = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r ExperienceRecord) Complete() bool {
	return filled(r.Title, r.Company, r.Duration, r.Src)
}

func (r ExperienceRecord) Normalized() ExperienceRecord { return r }

func (ExperienceRecord) MediaField() ExperienceField { return ExperienceSrc }

// ---- Projects ----

type ProjectField string

const (
	ProjectSrc         ProjectField = "src"
	ProjectTitle       ProjectField = "title"
	ProjectDescription ProjectField = "description"
	ProjectHref        ProjectField = "href"
)

type ProjectRecord struct {
	Src         string `json:"src"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Href        string `json:"href"`
}

func (ProjectRecord) Fields() []ProjectField {
	return []ProjectField{ProjectSrc, ProjectTitle, ProjectDescription, ProjectHref}
}

func (r ProjectRecord) With(f ProjectField, v string) (ProjectRecord, error) {
	switch f {
	case ProjectSrc:
		r.Src = v
	case ProjectTitle:
		r.Title = v
	case ProjectDescription:
		r.Description = v
	case ProjectHref:
		r.Href = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r ProjectRecord) Complete() bool {
	return filled(r.Title, r.Description)
}

// Normalized prefixes a bare domain with https://. Values already carrying a
// scheme are kept as they are.
func (r ProjectRecord) Normalized() ProjectRecord {
	r.Href = withScheme(r.Href)
	return r
}

func (ProjectRecord) MediaField() ProjectField { return ProjectSrc }

func withScheme(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.Contains(href, "://") {
		return href
	}
	return "https://" + href
}

// ---- Education ----

type EducationField string

const (
	EducationTitle       EducationField = "title"
	EducationInstitution EducationField = "institution"
	EducationDuration    EducationField = "duration"
	EducationDescription EducationField = "description"
)

type EducationRecord struct {
	Title       string `json:"title"`
	Institution string `json:"institution"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

func (EducationRecord) Fields() []EducationField {
	return []EducationField{EducationTitle, EducationInstitution, EducationDuration, EducationDescription}
}

func (r EducationRecord) With(f EducationField, v string) (EducationRecord, error) {
	switch f {
	case EducationTitle:
		r.Title = v
	case EducationInstitution:
		r.Institution = v
	case EducationDuration:
		r.Duration = v
	case EducationDescription:
		r.Description = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r EducationRecord) Complete() bool { return filled(r.Title, r.Institution) }

func (r EducationRecord) Normalized() EducationRecord { return r }

// ---- Stack ----

type StackField string

const (
	StackSrc         StackField = "src"
	StackName        StackField = "name"
	StackDescription StackField = "description"
)

type StackRecord struct {
	Src         string `json:"src"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (StackRecord) Fields() []StackField {
	return []StackField{StackSrc, StackName, StackDescription}
}

func (r StackRecord) With(f StackField, v string) (StackRecord, error) {
	switch f {
	case StackSrc:
		r.Src = v
	case StackName:
		r.Name = v
	case StackDescription:
		r.Description = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r StackRecord) Complete() bool { return filled(r.Name, r.Description, r.Src) }

func (r StackRecord) Normalized() StackRecord { return r }

func (StackRecord) MediaField() StackField { return StackSrc }

// ---- Certifications ----

type CertificationField string

const (
	CertificationTitle       CertificationField = "title"
	CertificationInstitution CertificationField = "institution"
	CertificationDuration    CertificationField = "duration"
	CertificationDescription CertificationField = "description"
)

type CertificationRecord struct {
	Title       string `json:"title"`
	Institution string `json:"institution"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

func (CertificationRecord) Fields() []CertificationField {
	return []CertificationField{CertificationTitle, CertificationInstitution, CertificationDuration, CertificationDescription}
}

func (r CertificationRecord) With(f CertificationField, v string) (CertificationRecord, error) {
	switch f {
	case CertificationTitle:
		r.Title = v
	case CertificationInstitution:
		r.Institution = v
	case CertificationDuration:
		r.Duration = v
	case CertificationDescription:
		r.Description = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r CertificationRecord) Complete() bool { return filled(r.Title, r.Institution) }

func (r CertificationRecord) Normalized() CertificationRecord { return r }

// ---- Awards ----

type AwardField string

const (
	AwardName        AwardField = "name"
	AwardYear        AwardField = "year"
	AwardDescription AwardField = "description"
)

// AwardRecord.Year is optional; zero means "not given".
type AwardRecord struct {
	Name        string `json:"name"`
	Year        int    `json:"year"`
	Description string `json:"description"`
}

func (AwardRecord) Fields() []AwardField {
	return []AwardField{AwardName, AwardYear, AwardDescription}
}

func (r AwardRecord) With(f AwardField, v string) (AwardRecord, error) {
	switch f {
	case AwardName:
		r.Name = v
	case AwardYear:
		v = strings.TrimSpace(v)
		if v == "" {
			r.Year = 0
			return r, nil
		}
		year, err := strconv.Atoi(v)
		if err != nil || year < 0 {
			return r, apperror.ValidationFailed(string(AwardYear), "year must be a whole number")
		}
		r.Year = year
	case AwardDescription:
		r.Description = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r AwardRecord) Complete() bool { return filled(r.Name, r.Description) }

func (r AwardRecord) Normalized() AwardRecord { return r }

// ---- Languages ----

type LanguageField string

const (
	LanguageName        LanguageField = "name"
	LanguageProficiency LanguageField = "proficiency"
)

type LanguageRecord struct {
	Name        string `json:"name"`
	Proficiency string `json:"proficiency"`
}

func (LanguageRecord) Fields() []LanguageField {
	return []LanguageField{LanguageName, LanguageProficiency}
}

func (r LanguageRecord) With(f LanguageField, v string) (LanguageRecord, error) {
	switch f {
	case LanguageName:
		r.Name = v
	case LanguageProficiency:
		r.Proficiency = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r LanguageRecord) Complete() bool { return filled(r.Name, r.Proficiency) }

func (r LanguageRecord) Normalized() LanguageRecord { return r }
