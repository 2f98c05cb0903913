package authclient

// Requirement is declared per protected route and evaluated on navigation.
type Requirement struct {
	// RequiredRole restricts the route to a single role; empty allows any
	// authenticated user.
	RequiredRole UserRole
	// RequireVerified blocks users whose email is not verified yet.
	RequireVerified bool
	// RequireApproved blocks unapproved doctors even on routes that do not
	// pin the doctor role.
	RequireApproved bool
}

// DecisionKind enumerates guard outcomes.
type DecisionKind string

const (
	// DecisionShowLoading means hydration has not settled; the UI waits.
	DecisionShowLoading DecisionKind = "show-loading"
	// DecisionRender allows the route.
	DecisionRender DecisionKind = "render"
	// DecisionRedirectLogin sends the visitor to login, preserving the
	// requested path for the post-login redirect.
	DecisionRedirectLogin DecisionKind = "redirect-login"
	// DecisionRedirectRoleHome bounces a wrong-role user to their own home.
	DecisionRedirectRoleHome DecisionKind = "redirect-role-home"
	// DecisionRedirectVerifyRequired sends unverified users to the
	// verification prompt.
	DecisionRedirectVerifyRequired DecisionKind = "redirect-verify-required"
	// DecisionRedirectApprovalPending parks unapproved doctors.
	DecisionRedirectApprovalPending DecisionKind = "redirect-approval-pending"
	// DecisionRedirectDefault is the fallback for roles without a home.
	DecisionRedirectDefault DecisionKind = "redirect-default"
)

// Decision is the guard outcome. Target carries the redirect destination for
// redirect kinds; ReturnPath carries the originally requested path so login
// can send the user back; Role is set for role-home redirects.
type Decision struct {
	Kind       DecisionKind
	Target     string
	ReturnPath string
	Role       UserRole
}

// GuardRoutes maps decisions onto concrete paths. The role -> home mapping
// is deployment configuration, not session logic; DefaultGuardRoutes mirrors
// the portal defaults.
type GuardRoutes struct {
	Login           string
	VerifyRequired  string
	ApprovalPending string
	Default         string
	RoleHome        map[UserRole]string
}

// DefaultGuardRoutes returns the portal's standard route set.
func DefaultGuardRoutes() GuardRoutes {
	return GuardRoutes{
		Login:           "/login",
		VerifyRequired:  "/verify-email-required",
		ApprovalPending: "/doctor/approval-pending",
		Default:         "/",
		RoleHome: map[UserRole]string{
			RolePatient: "/patient/dashboard",
			RoleDoctor:  "/doctor/dashboard",
			RoleAdmin:   "/admin/dashboard",
		},
	}
}

// EvaluateRoute decides whether a route renders for the given session view.
//
// The evaluation order is part of the contract and must not be rearranged:
// verification is checked before the role-mismatch redirect, and doctor
// approval only after the role check passed. Swapping steps changes which
// page an unverified, wrong-role, or unapproved visitor lands on.
func EvaluateRoute(snap Snapshot, req Requirement, currentPath string, routes GuardRoutes) Decision {
	if snap.IsLoading() {
		return Decision{Kind: DecisionShowLoading}
	}

	if !snap.IsAuthenticated() {
		return Decision{
			Kind:       DecisionRedirectLogin,
			Target:     routes.Login,
			ReturnPath: currentPath,
		}
	}

	user := snap.User

	if req.RequireVerified && !user.IsVerified {
		return Decision{
			Kind:   DecisionRedirectVerifyRequired,
			Target: routes.VerifyRequired,
		}
	}

	if req.RequiredRole != "" && user.Role != req.RequiredRole {
		if home, ok := routes.RoleHome[user.Role]; ok && home != "" {
			return Decision{
				Kind:   DecisionRedirectRoleHome,
				Target: home,
				Role:   user.Role,
			}
		}
		return Decision{
			Kind:   DecisionRedirectDefault,
			Target: routes.Default,
		}
	}

	needsApproval := req.RequiredRole == RoleDoctor || req.RequireApproved
	if needsApproval && user.Role == RoleDoctor && !user.IsApproved {
		return Decision{
			Kind:   DecisionRedirectApprovalPending,
			Target: routes.ApprovalPending,
		}
	}

	return Decision{Kind: DecisionRender}
}
