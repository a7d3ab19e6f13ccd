package auth

import "staffroster.org/internal/apperr"

// Endpoint identifies a protected API operation.
type Endpoint string

const (
	EndpointRegisterUser Endpoint = "register_user"
	EndpointDeleteUser   Endpoint = "delete_user"
	EndpointUpdateUser   Endpoint = "update_user"
	EndpointViewUsers    Endpoint = "view_users"
	EndpointCreatePost   Endpoint = "create_post"
	EndpointDeletePost   Endpoint = "delete_post"
)

// EndpointRoles is the explicit allow-list per endpoint. Entries are not
// expanded through the role hierarchy.
var EndpointRoles = map[Endpoint][]Role{
	EndpointRegisterUser: {RoleAdmin},
	EndpointDeleteUser:   {RoleAdmin},
	EndpointUpdateUser:   {RoleAdmin, RoleOwner, RoleManager},
	EndpointViewUsers:    {RoleAdmin, RoleOwner, RoleManager, RoleFloorManager},
	EndpointCreatePost:   {RoleAdmin, RoleOwner, RoleManager},
	EndpointDeletePost:   {RoleAdmin, RoleOwner},
}

// AllowedRoles returns a copy of the allow-list for endpoint.
func AllowedRoles(endpoint Endpoint) []Role {
	roles := EndpointRoles[endpoint]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// RequireRole passes when the principal's role is listed in allowed.
func RequireRole(p *Principal, allowed ...Role) error {
	if p == nil {
		return apperr.New(apperr.KindInvalidToken, "MISSING_TOKEN", "Authentication token is required")
	}
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	required := make([]string, len(allowed))
	for i, r := range allowed {
		required[i] = string(r)
	}
	return apperr.Denied(required, string(p.Role))
}

// Authorize checks p against the allow-list of endpoint. Unknown endpoints
// admit nobody.
func Authorize(p *Principal, endpoint Endpoint) error {
	return RequireRole(p, EndpointRoles[endpoint]...)
}
