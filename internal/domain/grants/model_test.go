package grants

import "testing"

func TestIPAllowed(t *testing.T) {
	cases := []struct {
		name     string
		prefixes []string
		addr     string
		want     bool
	}{
		{"empty list is unrestricted", nil, "198.51.100.9:4321", true},
		{"trailing dot prefix matches", []string{"10."}, "10.0.0.5:1234", true},
		{"exact address", []string{"192.0.2.1"}, "192.0.2.1:1234", true},
		{"host without port", []string{"192.0.2."}, "192.0.2.7", true},
		{"outside the list", []string{"10.", "172.16."}, "192.0.2.1:1234", false},
		{"empty address with list", []string{"10."}, "", false},

		// El prefijo corta en límite de octeto: "10.1" no es "10.1*".
		{"octet boundary holds", []string{"10.1"}, "10.1.0.5:1234", true},
		{"partial octet does not widen", []string{"10.1"}, "10.100.0.5:1234", false},
		{"partial last octet does not widen", []string{"192.0.2.1"}, "192.0.2.15:1234", false},

		// IPv6: límite de grupo con dos puntos.
		{"ipv6 group prefix", []string{"2001:db8:"}, "[2001:db8::1]:443", true},
		{"ipv6 exact group", []string{"2001:db8"}, "2001:db8::1", true},
		{"ipv6 partial group does not widen", []string{"2001:db8"}, "2001:db80::1", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := Grant{AllowedIPPrefixes: tc.prefixes}
			if got := g.IPAllowed(tc.addr); got != tc.want {
				t.Errorf("IPAllowed(%q) with %v = %v, want %v", tc.addr, tc.prefixes, got, tc.want)
			}
		})
	}
}
