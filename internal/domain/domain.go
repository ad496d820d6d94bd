// Package domain classifies work items into domains and decides which
// domain pairs may run concurrently in the same scheduling window (§4.E
// Domain Classifier). Grounded on the teacher's label-driven unit
// classification in internal/discovery/types.go, simplified: a work item
// here is a leaf with no dependency graph, so classification only needs
// to produce a single domain label per item, not a dependency closure.
package domain

import (
	"regexp"
	"strings"

	"github.com/foreman-run/foreman/internal/config"
)

// Unknown is the domain assigned to items that match no configured rule.
const Unknown = "unknown"

// restricted domains are incompatible with themselves: two items in the
// same restricted domain are assumed to touch the same sensitive surface
// (schema, pricing, auth) and must never run concurrently.
var restricted = map[string]bool{
	"database": true,
	"billing":  true,
	"security": true,
}

// Item is the minimal shape the classifier needs from a work item.
type Item struct {
	Labels []string
	Title  string
}

// Classifier maps work items to domains using configured rules, in
// order: label-prefix match first, then title keyword match, then Unknown.
type Classifier struct {
	rules []compiledRule
}

type compiledRule struct {
	domain string
	labels map[string]bool
	title  *regexp.Regexp
}

// New builds a Classifier from configured domain rules.
func New(rules []config.DomainRule) (*Classifier, error) {
	c := &Classifier{}
	for _, r := range rules {
		cr := compiledRule{domain: r.Domain}
		if len(r.Labels) > 0 {
			cr.labels = make(map[string]bool, len(r.Labels))
			for _, l := range r.Labels {
				cr.labels[strings.ToLower(l)] = true
			}
		}
		if r.TitlePattern != "" {
			re, err := regexp.Compile(r.TitlePattern)
			if err != nil {
				return nil, err
			}
			cr.title = re
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// Classify returns the domain for item: the first rule whose labels
// match wins; failing that, the first rule whose title pattern matches;
// failing that, Unknown.
func (c *Classifier) Classify(item Item) string {
	for _, r := range c.rules {
		if r.labels != nil && r.matchesLabel(item) {
			return r.domain
		}
	}
	for _, r := range c.rules {
		if r.title != nil && r.title.MatchString(item.Title) {
			return r.domain
		}
	}
	return Unknown
}

func (r compiledRule) matchesLabel(item Item) bool {
	for _, l := range item.Labels {
		lower := strings.ToLower(l)
		for key := range r.labels {
			if strings.HasPrefix(lower, key) {
				return true
			}
		}
	}
	return false
}

// CanRunParallel is the symmetric compatibility relation §4.E requires:
//   - database, billing, and security are each incompatible with themselves
//   - documentation is compatible with everything, including itself
//   - unknown is compatible with everything, including itself
//   - any other pair of identical domains is compatible
//   - any pair of distinct domains is compatible
func CanRunParallel(a, b string) bool {
	if a == "documentation" || b == "documentation" {
		return true
	}
	if a == Unknown || b == Unknown {
		return true
	}
	if a == b && restricted[a] {
		return false
	}
	return true
}

var (
	slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
	slugDashes   = regexp.MustCompile(`-+`)
)

// Slugify produces a branch/identifier-safe slug from title: lowercased,
// non-alphanumeric runs collapsed to single hyphens, trimmed, capped at 40
// characters.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugNonAlnum.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	return s
}
