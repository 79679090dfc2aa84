// Package filter decides whether an extracted post is worth keeping.
package filter

import (
	"strings"

	"booruscraper/pkg/config"
	"booruscraper/pkg/extractor"
)

// Rejection reasons reported by Policy.Reason
const (
	ReasonFormat  = "format"
	ReasonRating  = "rating"
	ReasonSubject = "subject"
)

// Policy is a pure acceptance predicate over post candidates
type Policy struct {
	allowedFormats map[string]struct{}
	allowedRatings map[string]struct{}
	// RequiredSubject, when set, must appear as a substring of at least one
	// character tag. Substring matching means "miku" also matches
	// "hatsune_miku_(append)"; that is intended.
	RequiredSubject string
}

// NewPolicy builds a policy. Formats are matched case-insensitively against
// the candidate's extension. An empty ratings list allows every rating.
func NewPolicy(formats, ratings []string, requiredSubject string) *Policy {
	p := &Policy{
		allowedFormats:  make(map[string]struct{}, len(formats)),
		RequiredSubject: requiredSubject,
	}
	for _, f := range formats {
		p.allowedFormats[strings.ToLower(strings.TrimPrefix(f, "."))] = struct{}{}
	}
	if len(ratings) > 0 {
		p.allowedRatings = make(map[string]struct{}, len(ratings))
		for _, r := range ratings {
			p.allowedRatings[strings.ToLower(r)] = struct{}{}
		}
	}
	return p
}

// Accept reports whether the candidate passes every rule
func (p *Policy) Accept(c *extractor.PostCandidate) bool {
	return p.Reason(c) == ""
}

// Reason returns the first rule the candidate fails, or "" when accepted
func (p *Policy) Reason(c *extractor.PostCandidate) string {
	if _, ok := p.allowedFormats[strings.ToLower(c.Format)]; !ok {
		return ReasonFormat
	}
	if p.allowedRatings != nil {
		if _, ok := p.allowedRatings[strings.ToLower(c.Rating)]; !ok {
			return ReasonRating
		}
	}
	if p.RequiredSubject != "" && !hasSubject(c.Characters(), p.RequiredSubject) {
		return ReasonSubject
	}
	return ""
}

func hasSubject(characters []string, subject string) bool {
	for _, ch := range characters {
		if strings.Contains(ch, subject) {
			return true
		}
	}
	return false
}

// FromConfig builds the policy for a run. In single-character mode the
// subject defaults to the first configured tag.
func FromConfig(cfg *config.Config) *Policy {
	subject := ""
	if cfg.Filter.SingleCharacter {
		subject = cfg.Filter.Subject
		if subject == "" && len(cfg.Crawl.Tags) > 0 {
			if fields := strings.Fields(cfg.Crawl.Tags[0]); len(fields) > 0 {
				subject = fields[0]
			}
		}
	}
	return NewPolicy(cfg.AllowedFormats(), cfg.Filter.Ratings, subject)
}
