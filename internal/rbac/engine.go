// Package rbac implements the four-stage authorization gate: authentication
// presence, role membership, permissions and zone scope. Stages are pure and
// return an Outcome; the first denial short-circuits the rest.
package rbac

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/carecoord/authcore/internal/platform/httpx"
)

// Decision is the verdict of a stage.
type Decision int

const (
	Allow Decision = iota
	Deny
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Outcome is the result of evaluating a policy.
type Outcome struct {
	Decision Decision
	Status   int
	Code     string
	Message  string
	Details  map[string]any
}

// Allowed reports whether the request may proceed.
func (o Outcome) Allowed() bool {
	return o.Decision == Allow
}

var allowed = Outcome{Decision: Allow, Status: http.StatusOK}

func deny(status int, code, message string, details map[string]any) Outcome {
	return Outcome{Decision: Deny, Status: status, Code: code, Message: message, Details: details}
}

// DecisionRecorder receives one call per evaluated request.
type DecisionRecorder interface {
	RecordDecision(decision, code string)
}

// Engine evaluates policies against the request principal.
type Engine struct {
	provider PermissionProvider
	logger   *slog.Logger
	recorder DecisionRecorder
}

// NewEngine constructs an Engine. recorder may be nil.
func NewEngine(provider PermissionProvider, logger *slog.Logger, recorder DecisionRecorder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{provider: provider, logger: logger, recorder: recorder}
}

// Evaluate runs the four stages in order.
func (e *Engine) Evaluate(r *http.Request, policy Policy) Outcome {
	return e.evaluate(r, compile(policy))
}

// Require returns middleware enforcing policy.
func (e *Engine) Require(policy Policy) func(http.Handler) http.Handler {
	compiled := compile(policy)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := e.evaluate(r, compiled)
			if outcome.Allowed() {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Error(w, r, outcome.Status, outcome.Code, outcome.Message, outcome.Details)
		})
	}
}

func (e *Engine) evaluate(r *http.Request, policy Policy) Outcome {
	p := PrincipalFromContext(r.Context())
	outcome := checkAuthenticated(p)
	if outcome.Allowed() {
		outcome = checkRole(p, policy)
	}
	if outcome.Allowed() {
		outcome = checkPermissions(p, policy, e.provider)
	}
	if outcome.Allowed() {
		outcome = checkZone(p, policy, e.provider, r)
	}
	if e.recorder != nil {
		e.recorder.RecordDecision(outcome.Decision.String(), outcome.Code)
	}
	if !outcome.Allowed() {
		attrs := []any{
			slog.String("code", outcome.Code),
			slog.String("path", r.URL.Path),
		}
		if p != nil {
			attrs = append(attrs, slog.String("identity_id", p.IdentityID), slog.String("role", p.Role))
		}
		e.logger.Warn("authorization denied", attrs...)
	}
	return outcome
}

func checkAuthenticated(p *Principal) Outcome {
	if p == nil || p.IdentityID == "" {
		return deny(http.StatusUnauthorized, httpx.CodeUnauthenticated, "authentication required", nil)
	}
	return allowed
}

func checkRole(p *Principal, policy Policy) Outcome {
	if len(policy.Roles) == 0 {
		return allowed
	}
	for _, role := range policy.Roles {
		if role == p.Role {
			return allowed
		}
	}
	return deny(http.StatusForbidden, httpx.CodeInsufficientRole, "role not permitted for this resource", map[string]any{
		"requiredRoles": policy.Roles,
		"actualRole":    p.Role,
	})
}

func checkPermissions(p *Principal, policy Policy, provider PermissionProvider) Outcome {
	if len(policy.Permissions) == 0 {
		return allowed
	}
	granted := EffectivePermissions(provider, p.Role, p.Permissions)
	missing := missingPermissions(granted, policy.Permissions)
	if len(missing) == 0 {
		return allowed
	}
	return deny(http.StatusForbidden, httpx.CodeInsufficientPermissions, "missing required permissions", map[string]any{
		"requiredPermissions": policy.Permissions,
		"missingPermissions":  missing,
	})
}

func checkZone(p *Principal, policy Policy, provider PermissionProvider, r *http.Request) Outcome {
	if !policy.EnforceZoneCheck || provider.ZoneBypass(p.Role) {
		return allowed
	}
	target, ok := policy.ZoneResolver(r)
	if !ok {
		return deny(http.StatusForbidden, httpx.CodeZoneAccessDenied, "request does not name a zone", map[string]any{
			"actualZone": p.ZoneID,
		})
	}
	if p.ZoneID == "" || p.ZoneID != target {
		return deny(http.StatusForbidden, httpx.CodeZoneAccessDenied, "resource belongs to another zone", map[string]any{
			"requiredZone": target,
			"actualZone":   p.ZoneID,
		})
	}
	return allowed
}

// compile normalizes a policy once so per-request evaluation does no parsing.
func compile(policy Policy) Policy {
	roles := make([]string, 0, len(policy.Roles))
	for _, role := range policy.Roles {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	perms := normalizePermissions(policy.Permissions)
	sort.Strings(perms)
	policy.Roles = roles
	policy.Permissions = perms
	if policy.EnforceZoneCheck && policy.ZoneResolver == nil {
		policy.ZoneResolver = PathParam(DefaultZoneParam)
	}
	return policy
}
