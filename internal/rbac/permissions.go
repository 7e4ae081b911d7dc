package rbac

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Wildcard satisfies every permission check.
const Wildcard = "*"

//go:embed policy.yaml
var defaultPolicy []byte

// PermissionProvider resolves static role data. Per-tenant overrides can be
// layered by wrapping a provider.
type PermissionProvider interface {
	HasRole(role string) bool
	RolePermissions(role string) []string
	ZoneBypass(role string) bool
}

// RoleInfo describes one role of the map.
type RoleInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	ZoneBypass  bool     `json:"zoneBypass"`
}

type roleEntry struct {
	description string
	permissions []string
	set         map[string]struct{}
	zoneBypass  bool
}

// PermissionMap is the immutable role to permission table.
type PermissionMap struct {
	roles map[string]roleEntry
}

type policyFile struct {
	Roles map[string]struct {
		Description string   `yaml:"description"`
		Permissions []string `yaml:"permissions"`
		ZoneBypass  bool     `yaml:"zone_bypass"`
	} `yaml:"roles"`
}

// ParsePermissionMap builds a PermissionMap from YAML.
func ParsePermissionMap(data []byte) (*PermissionMap, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rbac: parse policy: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, errors.New("rbac: policy defines no roles")
	}
	m := &PermissionMap{roles: make(map[string]roleEntry, len(file.Roles))}
	for name, def := range file.Roles {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("rbac: policy contains an empty role name")
		}
		perms := normalizePermissions(def.Permissions)
		sort.Strings(perms)
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		m.roles[name] = roleEntry{
			description: strings.TrimSpace(def.Description),
			permissions: perms,
			set:         set,
			zoneBypass:  def.ZoneBypass,
		}
	}
	return m, nil
}

// LoadPermissionFile reads a YAML policy from disk.
func LoadPermissionFile(path string) (*PermissionMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read policy: %w", err)
	}
	return ParsePermissionMap(data)
}

var (
	defaultOnce sync.Once
	defaultMap  *PermissionMap
	defaultErr  error
)

// DefaultPermissionMap returns the embedded map, parsed once per process.
func DefaultPermissionMap() (*PermissionMap, error) {
	defaultOnce.Do(func() {
		defaultMap, defaultErr = ParsePermissionMap(defaultPolicy)
	})
	return defaultMap, defaultErr
}

// HasRole reports whether role is defined.
func (m *PermissionMap) HasRole(role string) bool {
	_, ok := m.roles[role]
	return ok
}

// RolePermissions returns a copy of the role's permissions.
func (m *PermissionMap) RolePermissions(role string) []string {
	entry, ok := m.roles[role]
	if !ok {
		return nil
	}
	return append([]string(nil), entry.permissions...)
}

// ZoneBypass reports whether role skips the zone check.
func (m *PermissionMap) ZoneBypass(role string) bool {
	return m.roles[role].zoneBypass
}

// Roles lists every role ordered by name.
func (m *PermissionMap) Roles() []RoleInfo {
	out := make([]RoleInfo, 0, len(m.roles))
	for name, entry := range m.roles {
		out = append(out, RoleInfo{
			Name:        name,
			Description: entry.description,
			Permissions: append([]string(nil), entry.permissions...),
			ZoneBypass:  entry.zoneBypass,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EffectivePermissions unions the role's permissions with extra grants.
func EffectivePermissions(provider PermissionProvider, role string, extra []string) []string {
	merged := append(provider.RolePermissions(role), extra...)
	perms := normalizePermissions(merged)
	sort.Strings(perms)
	return perms
}

// missingPermissions returns the required entries not covered by granted.
func missingPermissions(granted, required []string) []string {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	if _, ok := set[Wildcard]; ok {
		return nil
	}
	var missing []string
	for _, r := range required {
		if _, ok := set[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

var _ PermissionProvider = (*PermissionMap)(nil)
