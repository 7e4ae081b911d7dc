package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecoord/authcore/internal/platform/httpx"
	"github.com/carecoord/authcore/internal/rbac"
)

type countingRecorder struct {
	decisions map[string]int
}

func (c *countingRecorder) RecordDecision(decision, _ string) {
	c.decisions[decision]++
}

func defaultMap(t *testing.T) *rbac.PermissionMap {
	t.Helper()
	m, err := rbac.DefaultPermissionMap()
	require.NoError(t, err)
	return m
}

func member(zone string) *rbac.Principal {
	return &rbac.Principal{IdentityID: "u-member", Role: "member", ZoneID: zone, SessionID: "s1", TokenID: "t1"}
}

func admin() *rbac.Principal {
	return &rbac.Principal{IdentityID: "u-admin", Role: "administrator", SessionID: "s2", TokenID: "t2"}
}

// serve mounts policy on two routes and issues one request as p.
func serve(t *testing.T, engine *rbac.Engine, policy rbac.Policy, p *rbac.Principal, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if p != nil {
				req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.With(engine.Require(policy)).Get("/zones/{zoneID}/members", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.With(engine.Require(policy)).Get("/reports", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUnauthenticatedIsRejectedFirst(t *testing.T) {
	engine := rbac.NewEngine(defaultMap(t), nil, nil)
	rec := serve(t, engine, rbac.RequireRoles("administrator"), nil, "/reports")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, httpx.CodeUnauthenticated, body.Code)
	assert.NotEmpty(t, body.Timestamp)
}

func TestRoleCheckReportsRequiredAndActual(t *testing.T) {
	engine := rbac.NewEngine(defaultMap(t), nil, nil)
	rec := serve(t, engine, rbac.RequireRoles("administrator", "coordinator"), member("z1"), "/reports")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, httpx.CodeInsufficientRole, body.Code)
	assert.Equal(t, "member", body.Details["actualRole"])
	assert.ElementsMatch(t, []any{"administrator", "coordinator"}, body.Details["requiredRoles"])
}

func TestPermissionCheckUsesRoleAndTokenGrants(t *testing.T) {
	engine := rbac.NewEngine(defaultMap(t), nil, nil)
	policy := rbac.RequirePermissions("reports:read")

	rec := serve(t, engine, policy, member("z1"), "/reports")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, httpx.CodeInsufficientPermissions, body.Code)
	assert.Equal(t, []any{"reports:read"}, body.Details["missingPermissions"])

	granted := member("z1")
	granted.Permissions = []string{"reports:read"}
	rec = serve(t, engine, policy, granted, "/reports")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestZoneEnforcement(t *testing.T) {
	engine := rbac.NewEngine(defaultMap(t), nil, nil)
	policy := rbac.Policy{Permissions: []string{"users:read"}, EnforceZoneCheck: true}

	rec := serve(t, engine, policy, member("z1"), "/zones/z1/members")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, engine, policy, member("z1"), "/zones/z2/members")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, httpx.CodeZoneAccessDenied, body.Code)
	assert.Equal(t, "z2", body.Details["requiredZone"])
	assert.Equal(t, "z1", body.Details["actualZone"])

	rec = serve(t, engine, policy, admin(), "/zones/z2/members")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestZonelessIdentityIsDeniedZonedResources(t *testing.T) {
	engine := rbac.NewEngine(defaultMap(t), nil, nil)
	policy := rbac.Policy{EnforceZoneCheck: true}

	rec := serve(t, engine, policy, member(""), "/zones/z1/members")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httpx.CodeZoneAccessDenied, decode(t, rec).Code)

	rec = serve(t, engine, policy, member("z1"), "/reports")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdministratorWildcardSatisfiesEveryPermission(t *testing.T) {
	m := defaultMap(t)
	engine := rbac.NewEngine(m, nil, nil)

	var all []string
	for _, role := range m.Roles() {
		all = append(all, role.Permissions...)
	}
	all = append(all, "something:never_granted")

	for _, perm := range all {
		if perm == rbac.Wildcard {
			continue
		}
		req := httptest.NewRequest(http.MethodGet, "/reports", nil)
		req = req.WithContext(rbac.ContextWithPrincipal(context.Background(), admin()))
		outcome := engine.Evaluate(req, rbac.RequirePermissions(perm))
		assert.True(t, outcome.Allowed(), perm)
	}
}

func TestStagesRunInOrder(t *testing.T) {
	engine := rbac.NewEngine(defaultMap(t), nil, nil)
	policy := rbac.Policy{
		Roles:            []string{"coordinator"},
		Permissions:      []string{"reports:read"},
		EnforceZoneCheck: true,
	}

	// A member fails the role stage before permissions or zone are looked at.
	rec := serve(t, engine, policy, member("z9"), "/zones/z1/members")
	assert.Equal(t, httpx.CodeInsufficientRole, decode(t, rec).Code)
}

func TestDecisionsAreRecorded(t *testing.T) {
	recorder := &countingRecorder{decisions: map[string]int{}}
	engine := rbac.NewEngine(defaultMap(t), nil, recorder)

	serve(t, engine, rbac.RequireRoles("member"), member("z1"), "/reports")
	serve(t, engine, rbac.RequireRoles("member"), nil, "/reports")

	assert.Equal(t, 1, recorder.decisions["allow"])
	assert.Equal(t, 1, recorder.decisions["deny"])
}

func TestHeaderResolver(t *testing.T) {
	engine := rbac.NewEngine(defaultMap(t), nil, nil)
	policy := rbac.RequirePermissions("visits:read").InZone(rbac.Header("X-Zone-ID"))

	req := httptest.NewRequest(http.MethodGet, "/visits", nil)
	req.Header.Set("X-Zone-ID", "z1")
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), member("z1")))
	assert.True(t, engine.Evaluate(req, policy).Allowed())

	req.Header.Set("X-Zone-ID", "z2")
	outcome := engine.Evaluate(req, policy)
	assert.False(t, outcome.Allowed())
	assert.Equal(t, httpx.CodeZoneAccessDenied, outcome.Code)
}

func TestParsePermissionMap(t *testing.T) {
	m, err := rbac.ParsePermissionMap([]byte(`
roles:
  auditor:
    permissions: ["Reports:Read", " reports:read "]
`))
	require.NoError(t, err)
	assert.True(t, m.HasRole("auditor"))
	assert.False(t, m.HasRole("member"))
	assert.Equal(t, []string{"reports:read"}, m.RolePermissions("auditor"))
	assert.False(t, m.ZoneBypass("auditor"))

	_, err = rbac.ParsePermissionMap([]byte(`roles: {}`))
	require.Error(t, err)
}

func TestRolesHandlerIsAdministratorOnly(t *testing.T) {
	m := defaultMap(t)
	engine := rbac.NewEngine(m, nil, nil)
	handler := rbac.NewRolesHandler(m, engine)

	for _, tc := range []struct {
		principal *rbac.Principal
		status    int
	}{
		{admin(), http.StatusOK},
		{member("z1"), http.StatusForbidden},
	} {
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(rbac.ContextWithPrincipal(req.Context(), tc.principal)))
			})
		})
		r.Route("/rbac", handler.MountRoutes)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rbac/roles", nil))
		assert.Equal(t, tc.status, rec.Code)
	}
}
