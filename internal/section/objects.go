package section

import (
	"strconv"
	"strings"

	"github.com/refolio/refolio/internal/apperror"
)

// ---- Personal details ----

type PersonalDetailsField string

const (
	PersonalName        PersonalDetailsField = "name"
	PersonalEmail       PersonalDetailsField = "email"
	PersonalLocation    PersonalDetailsField = "location"
	PersonalDescription PersonalDetailsField = "description"
	PersonalAvatar      PersonalDetailsField = "avatar"
	// PersonalUsername is edited on the same form but saved through the
	// username reservation, never inside the section document.
	PersonalUsername PersonalDetailsField = "username"
)

type PersonalDetailsRecord struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
	Username    string `json:"username,omitempty"`
}

func (PersonalDetailsRecord) Fields() []PersonalDetailsField {
	return []PersonalDetailsField{PersonalName, PersonalEmail, PersonalLocation, PersonalDescription, PersonalAvatar, PersonalUsername}
}

func (r PersonalDetailsRecord) With(f PersonalDetailsField, v string) (PersonalDetailsRecord, error) {
	switch f {
	case PersonalName:
		r.Name = v
	case PersonalEmail:
		r.Email = v
	case PersonalLocation:
		r.Location = v
	case PersonalDescription:
		r.Description = v
	case PersonalAvatar:
		r.Avatar = v
	case PersonalUsername:
		r.Username = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r PersonalDetailsRecord) Complete() bool {
	return anyFilled(r.Name, r.Email, r.Location, r.Description, r.Avatar)
}

func (r PersonalDetailsRecord) Normalized() PersonalDetailsRecord {
	r.Email = strings.TrimSpace(r.Email)
	r.Username = ""
	return r
}

func (PersonalDetailsRecord) MediaField() PersonalDetailsField { return PersonalAvatar }

// ---- Introduction ----

type IntroductionField string

const (
	IntroHeading    IntroductionField = "heading"
	IntroSubheading IntroductionField = "subheading"
	// IntroParagraphs takes one paragraph per line.
	IntroParagraphs IntroductionField = "paragraphs"
	// IntroTags takes a comma separated list.
	IntroTags IntroductionField = "tags"
)

type IntroductionRecord struct {
	Heading    string   `json:"heading"`
	Subheading string   `json:"subheading"`
	Paragraphs []string `json:"paragraphs"`
	Tags       []string `json:"tags"`
}

func (IntroductionRecord) Fields() []IntroductionField {
	return []IntroductionField{IntroHeading, IntroSubheading, IntroParagraphs, IntroTags}
}

func (r IntroductionRecord) With(f IntroductionField, v string) (IntroductionRecord, error) {
	switch f {
	case IntroHeading:
		r.Heading = v
	case IntroSubheading:
		r.Subheading = v
	case IntroParagraphs:
		r.Paragraphs = splitNonEmpty(v, "\n")
	case IntroTags:
		r.Tags = splitNonEmpty(v, ",")
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r IntroductionRecord) Complete() bool {
	return anyFilled(r.Heading, r.Subheading) || len(r.Paragraphs) > 0 || len(r.Tags) > 0
}

func (r IntroductionRecord) Normalized() IntroductionRecord {
	if r.Paragraphs == nil {
		r.Paragraphs = []string{}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return r
}

func splitNonEmpty(s, sep string) []string {
	out := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ---- GitHub ----

type GitHubField string

const GitHubUsername GitHubField = "username"

// GitHubRecord names the account whose pinned repositories are shown.
type GitHubRecord struct {
	Username string `json:"username"`
}

func (GitHubRecord) Fields() []GitHubField { return []GitHubField{GitHubUsername} }

func (r GitHubRecord) With(f GitHubField, v string) (GitHubRecord, error) {
	if f != GitHubUsername {
		return r, unknownField(f)
	}
	r.Username = v
	return r, nil
}

func (r GitHubRecord) Complete() bool { return anyFilled(r.Username) }

func (r GitHubRecord) Normalized() GitHubRecord {
	r.Username = strings.TrimPrefix(strings.TrimSpace(r.Username), "@")
	return r
}

// ---- Summary ----

type SummaryField string

const (
	SummaryParagraph SummaryField = "paragraph"
	SummaryLinkedIn  SummaryField = "linkedin"
	SummaryTwitter   SummaryField = "twitter"
	SummaryGitHub    SummaryField = "github"
)

type SocialLinks struct {
	LinkedIn string `json:"linkedin"`
	Twitter  string `json:"twitter"`
	GitHub   string `json:"github"`
}

type SummaryRecord struct {
	Paragraph   string      `json:"paragraph"`
	SocialLinks SocialLinks `json:"socialLinks"`
}

func (SummaryRecord) Fields() []SummaryField {
	return []SummaryField{SummaryParagraph, SummaryLinkedIn, SummaryTwitter, SummaryGitHub}
}

func (r SummaryRecord) With(f SummaryField, v string) (SummaryRecord, error) {
	switch f {
	case SummaryParagraph:
		r.Paragraph = v
	case SummaryLinkedIn:
		r.SocialLinks.LinkedIn = v
	case SummaryTwitter:
		r.SocialLinks.Twitter = v
	case SummaryGitHub:
		r.SocialLinks.GitHub = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

func (r SummaryRecord) Complete() bool {
	return anyFilled(r.Paragraph, r.SocialLinks.LinkedIn, r.SocialLinks.Twitter, r.SocialLinks.GitHub)
}

func (r SummaryRecord) Normalized() SummaryRecord { return r }

// ---- Password protection ----

type ProtectionField string

const (
	ProtectionEnabled  ProtectionField = "enabled"
	ProtectionPassword ProtectionField = "password"
)

// ProtectionRecord is the editor form of the password gate. Password holds
// the new plaintext secret only while editing; it is hashed on save and never
// read back.
type ProtectionRecord struct {
	Enabled     bool   `json:"enabled"`
	Password    string `json:"password,omitempty"`
	PasswordSet bool   `json:"passwordSet"`
}

func (ProtectionRecord) Fields() []ProtectionField {
	return []ProtectionField{ProtectionEnabled, ProtectionPassword}
}

func (r ProtectionRecord) With(f ProtectionField, v string) (ProtectionRecord, error) {
	switch f {
	case ProtectionEnabled:
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return r, apperror.ValidationFailed(string(ProtectionEnabled), "enabled must be true or false")
		}
		r.Enabled = enabled
	case ProtectionPassword:
		r.Password = v
	default:
		return r, unknownField(f)
	}
	return r, nil
}

// Complete is always false: the gate configuration is never displayed.
func (r ProtectionRecord) Complete() bool { return false }

func (r ProtectionRecord) Normalized() ProtectionRecord {
	r.Password = strings.TrimSpace(r.Password)
	return r
}

// Validate enforces that protection is never enabled without a secret.
// keepExisting reports whether a previously stored secret can be reused.
func (r ProtectionRecord) Validate(keepExisting bool) error {
	if r.Enabled && strings.TrimSpace(r.Password) == "" && !keepExisting {
		return apperror.ValidationFailed(string(ProtectionPassword), "Password cannot be empty when enabling protection.")
	}
	return nil
}
