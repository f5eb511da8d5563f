package rpc

import "testing"

func TestAuthorityString(t *testing.T) {
	tests := []struct {
		authority Authority
		want      string
	}{
		{AuthorityAdmin, "admin"},
		{AuthorityUser, "user"},
		{AuthorityGuest, "guest"},
		{AuthoritySystem, "system"},
		{Authority(99), "guest"},
	}

	for _, tt := range tests {
		if got := tt.authority.String(); got != tt.want {
			t.Errorf("Authority(%d).String() = %q, want %q", int(tt.authority), got, tt.want)
		}
	}
}

func TestAuthorityFromString(t *testing.T) {
	tests := []struct {
		in   string
		want Authority
	}{
		{"admin", AuthorityAdmin},
		{"user", AuthorityUser},
		{"guest", AuthorityGuest},
		{"system", AuthoritySystem},
		// Matching is case-exact; anything unrecognised falls back to guest.
		{"Admin", AuthorityGuest},
		{"SYSTEM", AuthorityGuest},
		{"", AuthorityGuest},
		{"operator", AuthorityGuest},
	}

	for _, tt := range tests {
		if got := AuthorityFromString(tt.in); got != tt.want {
			t.Errorf("AuthorityFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAuthorityRoundTrip(t *testing.T) {
	for _, a := range []Authority{AuthorityAdmin, AuthorityUser, AuthorityGuest, AuthoritySystem} {
		if got := AuthorityFromString(a.String()); got != a {
			t.Errorf("round trip of %v yielded %v", a, got)
		}
	}
}
