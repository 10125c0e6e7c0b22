package authz

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/stwalsh4118/landflow/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default_permissions.yaml
var defaultPermissions []byte

// Policy is the role to action permission table. It is external
// configuration; the engine only reads it.
type Policy struct {
	rules map[models.Role][]string
}

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// Default returns the built-in permission table.
func Default() *Policy {
	p, err := Parse(defaultPermissions)
	if err != nil {
		panic(fmt.Sprintf("authz: built-in permissions are invalid: %v", err))
	}
	return p
}

// Load reads a permission table from path, or returns Default when path is empty.
func Load(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authz: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("authz: %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML permission table.
func Parse(data []byte) (*Policy, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("permission table is empty")
	}
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode permission table: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("permission table has no roles")
	}
	rules := make(map[models.Role][]string, len(f.Roles))
	for role, patterns := range f.Roles {
		for _, pat := range patterns {
			if err := validatePattern(pat); err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
		}
		rules[models.Role(role)] = patterns
	}
	return &Policy{rules: rules}, nil
}

func validatePattern(pat string) error {
	if pat == "*" {
		return nil
	}
	if prefix, ok := strings.CutSuffix(pat, ".*"); ok {
		for _, a := range Actions {
			if strings.HasPrefix(a, prefix+".") {
				return nil
			}
		}
		return fmt.Errorf("pattern %q matches no action", pat)
	}
	if !slices.Contains(Actions, pat) {
		return fmt.Errorf("unknown action %q", pat)
	}
	return nil
}

func matches(pat, action string) bool {
	if pat == "*" || pat == action {
		return true
	}
	prefix, ok := strings.CutSuffix(pat, ".*")
	return ok && strings.HasPrefix(action, prefix+".")
}

// Allows reports whether role may perform action.
func (p *Policy) Allows(role models.Role, action string) bool {
	for _, pat := range p.rules[role] {
		if matches(pat, action) {
			return true
		}
	}
	return false
}

// Check returns a *models.ForbiddenError unless actor may perform action.
func (p *Policy) Check(actor models.Actor, action string) error {
	if strings.TrimSpace(actor.ID) == "" || !p.Allows(actor.Role, action) {
		return &models.ForbiddenError{Role: actor.Role, Action: action}
	}
	return nil
}
