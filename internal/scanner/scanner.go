package scanner

import (
	"fmt"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TimelineWatch/internal/domain"
)

// Profile captures how one site renders its timeline: where candidates live and how to read them.
type Profile interface {
	Name() string
	// CandidateSelector matches every node that might be a post.
	CandidateSelector() string
	// Extract reads one candidate; domain.ErrNoText means the candidate should be skipped.
	Extract(node *goquery.Selection, now time.Time) (domain.Fields, error)
}

// Registry keeps a mapping from profile names to their implementations.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: map[string]Profile{}}
}

// Register adds or replaces a profile implementation.
func (r *Registry) Register(profile Profile) {
	if r.profiles == nil {
		r.profiles = map[string]Profile{}
	}
	r.profiles[profile.Name()] = profile
}

// Resolve returns a profile by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Profile, error) {
	if profile, ok := r.profiles[name]; ok {
		return profile, nil
	}
	return nil, fmt.Errorf("profile %s is not registered", name)
}

// Names lists registered profiles in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
