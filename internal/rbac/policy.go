package rbac

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// DefaultZoneParam is the chi URL parameter read when no resolver is given.
const DefaultZoneParam = "zoneID"

// ZoneResolver extracts the target zone of a request. ok is false when the
// request names no zone.
type ZoneResolver func(r *http.Request) (zoneID string, ok bool)

// PathParam resolves the zone from a chi URL parameter.
func PathParam(name string) ZoneResolver {
	return func(r *http.Request) (string, bool) {
		zone := strings.TrimSpace(chi.URLParam(r, name))
		return zone, zone != ""
	}
}

// Header resolves the zone from a request header.
func Header(name string) ZoneResolver {
	return func(r *http.Request) (string, bool) {
		zone := strings.TrimSpace(r.Header.Get(name))
		return zone, zone != ""
	}
}

// Policy declares what an endpoint requires. Empty fields are not checked.
type Policy struct {
	Roles            []string
	Permissions      []string
	ZoneResolver     ZoneResolver
	EnforceZoneCheck bool
}

// RequireRoles is the legacy role-only form; the zone check stays off.
func RequireRoles(roles ...string) Policy {
	return Policy{Roles: roles}
}

// RequirePermissions builds a permission-only policy.
func RequirePermissions(perms ...string) Policy {
	return Policy{Permissions: perms}
}

// InZone returns a copy of p with the zone check enabled.
func (p Policy) InZone(resolver ZoneResolver) Policy {
	p.EnforceZoneCheck = true
	p.ZoneResolver = resolver
	return p
}
