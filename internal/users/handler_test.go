package users_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carecoord/authcore/internal/identity"
	"github.com/carecoord/authcore/internal/platform/httpx"
	"github.com/carecoord/authcore/internal/rbac"
	"github.com/carecoord/authcore/internal/users"
)

type fixture struct {
	router http.Handler
	ids    map[string]string
}

func newFixture(t *testing.T, principal func() *rbac.Principal) *fixture {
	t.Helper()
	permissions, err := rbac.DefaultPermissionMap()
	require.NoError(t, err)
	directory, err := identity.NewService(identity.NewMemoryRepository(), permissions, identity.Config{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	ids := map[string]string{}
	for _, in := range []identity.RegisterInput{
		{Email: "nurse@example.com", FirstName: "Nora", LastName: "Reyes", Role: "member", ZoneID: "z1"},
		{Email: "lead@example.com", FirstName: "Lee", LastName: "Adams", Role: "coordinator", ZoneID: "z1"},
		{Email: "other@example.com", FirstName: "Omar", LastName: "Diaz", Role: "member", ZoneID: "z2"},
		{Email: "admin@example.com", FirstName: "Ada", LastName: "Min", Role: "administrator"},
	} {
		in.Password = "Secure123"
		created, err := directory.Provision(context.Background(), in)
		require.NoError(t, err)
		ids[in.Email] = created.ID
	}

	engine := rbac.NewEngine(permissions, nil, nil)
	handler := users.NewHandler(nil, users.NewService(directory, permissions), engine)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if p := principal(); p != nil {
				req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Group(handler.MountRoutes)
	return &fixture{router: r, ids: ids}
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMeReturnsProfileWithEffectivePermissions(t *testing.T) {
	var f *fixture
	f = newFixture(t, func() *rbac.Principal {
		return &rbac.Principal{IdentityID: f.ids["nurse@example.com"], Role: "member", ZoneID: "z1", SessionID: "s1", DeviceID: "phone"}
	})

	rec := f.get("/users/me")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "nurse@example.com", body["email"])
	assert.Equal(t, "z1", body["zoneId"])
	assert.Equal(t, "phone", body["deviceId"])
	assert.Contains(t, body["permissions"], "visits:read")
	assert.NotContains(t, body, "passwordHash")
}

func TestMeRequiresAuthentication(t *testing.T) {
	f := newFixture(t, func() *rbac.Principal { return nil })
	rec := f.get("/users/me")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeForDeletedIdentityIsNotFound(t *testing.T) {
	f := newFixture(t, func() *rbac.Principal {
		return &rbac.Principal{IdentityID: "gone", Role: "member", ZoneID: "z1"}
	})
	rec := f.get("/users/me")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestZoneMembersAreZoneScoped(t *testing.T) {
	var f *fixture
	f = newFixture(t, func() *rbac.Principal {
		return &rbac.Principal{IdentityID: f.ids["nurse@example.com"], Role: "member", ZoneID: "z1"}
	})

	rec := f.get("/zones/z1/members")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ZoneID  string         `json:"zoneId"`
		Members []users.Member `json:"members"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "z1", body.ZoneID)
	emails := make([]string, 0, len(body.Members))
	for _, m := range body.Members {
		emails = append(emails, m.Email)
	}
	assert.ElementsMatch(t, []string{"nurse@example.com", "lead@example.com"}, emails)

	rec = f.get("/zones/z2/members")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var denied httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &denied))
	assert.Equal(t, httpx.CodeZoneAccessDenied, denied.Code)
}

func TestAdministratorReadsAnyZone(t *testing.T) {
	var f *fixture
	f = newFixture(t, func() *rbac.Principal {
		return &rbac.Principal{IdentityID: f.ids["admin@example.com"], Role: "administrator"}
	})
	rec := f.get("/zones/z2/members")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "other@example.com")
}
