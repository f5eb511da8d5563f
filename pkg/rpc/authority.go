package rpc

// Authority is the privilege tier carried in a request.
type Authority int

// Authority levels, ordered from most to least privileged, with System as a
// distinct tier for machine-to-machine traffic.
const (
	AuthorityAdmin Authority = iota
	AuthorityUser
	AuthorityGuest
	AuthoritySystem
)

// String returns the lowercase keyword used on the wire.
func (a Authority) String() string {
	switch a {
	case AuthorityAdmin:
		return "admin"
	case AuthorityUser:
		return "user"
	case AuthorityGuest:
		return "guest"
	case AuthoritySystem:
		return "system"
	default:
		return "unknown"
	}
}

// AuthorityFromString decodes a wire keyword. The match is case-exact;
// anything unrecognised, including the empty string, degrades to Guest.
// That is the documented default for malformed authority values, not an error.
func AuthorityFromString(s string) Authority {
	switch s {
	case "admin":
		return AuthorityAdmin
	case "user":
		return AuthorityUser
	case "guest":
		return AuthorityGuest
	case "system":
		return AuthoritySystem
	default:
		return AuthorityGuest
	}
}
