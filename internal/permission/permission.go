// Package permission decides which report models a user may view or change.
//
// Three backends are provided: AllowAll for local runs, Static for grants
// declared in configuration, and Melange for relationship-based checks
// stored in PostgreSQL.
package permission

import (
	"context"
	"fmt"
	"strings"

	"reportgen/internal/report"
	"reportgen/internal/schema"
)

// Mode selects a permissions backend.
type Mode string

const (
	ModeAllow   Mode = "allow"
	ModeStatic  Mode = "static"
	ModeMelange Mode = "melange"
)

// Wildcard matches any model in a grant.
const Wildcard = "*"

// ParseMode validates a configured mode. An empty string selects ModeAllow.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAllow:
		return ModeAllow, nil
	case ModeStatic:
		return ModeStatic, nil
	case ModeMelange:
		return ModeMelange, nil
	default:
		return "", fmt.Errorf("unknown permissions mode %q", s)
	}
}

// AllowAll grants every capability on every model.
func AllowAll() report.Permissions {
	return report.PermissionsFunc(func(context.Context, report.User, schema.EntityType, report.Capability) bool {
		return true
	})
}

// Grant gives the subject capabilities on one model.
// Subject is "user:<id>" or "role:<name>"; Model may be Wildcard.
type Grant struct {
	Subject      string   `mapstructure:"subject" yaml:"subject"`
	Model        string   `mapstructure:"model" yaml:"model"`
	Capabilities []string `mapstructure:"capabilities" yaml:"capabilities"`
}

// Static answers capability checks from a fixed set of grants.
type Static struct {
	grants map[string]map[string]map[report.Capability]struct{}
}

// NewStatic indexes grants. Unknown capabilities and malformed subjects are rejected.
func NewStatic(grants []Grant) (*Static, error) {
	s := &Static{grants: make(map[string]map[string]map[report.Capability]struct{})}
	for _, g := range grants {
		kind, _, ok := strings.Cut(g.Subject, ":")
		if !ok || (kind != "user" && kind != "role") {
			return nil, fmt.Errorf("invalid grant subject %q: want user:<id> or role:<name>", g.Subject)
		}
		if g.Model == "" {
			return nil, fmt.Errorf("grant for %s has no model", g.Subject)
		}
		models, ok := s.grants[g.Subject]
		if !ok {
			models = make(map[string]map[report.Capability]struct{})
			s.grants[g.Subject] = models
		}
		caps, ok := models[g.Model]
		if !ok {
			caps = make(map[report.Capability]struct{})
			models[g.Model] = caps
		}
		for _, c := range g.Capabilities {
			capability := report.Capability(strings.ToLower(c))
			if capability != report.CapabilityView && capability != report.CapabilityChange {
				return nil, fmt.Errorf("unknown capability %q for %s", c, g.Subject)
			}
			caps[capability] = struct{}{}
		}
	}
	return s, nil
}

// HasCapability reports whether the user, or any of the user's roles, holds
// capability on et.
func (s *Static) HasCapability(_ context.Context, user report.User, et schema.EntityType, capability report.Capability) bool {
	if s.granted("user:"+user.ID, et.Name(), capability) {
		return true
	}
	for _, role := range user.Roles {
		if s.granted("role:"+role, et.Name(), capability) {
			return true
		}
	}
	return false
}

func (s *Static) granted(subject, model string, capability report.Capability) bool {
	models, ok := s.grants[subject]
	if !ok {
		return false
	}
	for _, m := range []string{model, Wildcard} {
		if _, ok := models[m][capability]; ok {
			return true
		}
	}
	return false
}
