package chainclient

import "testing"

func TestDeriveWebSocketURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://mainnet.infura.io/v3/KEY", "wss://mainnet.infura.io/ws/v3/KEY"},
		{"http://localhost:8545/v3/KEY", "ws://localhost:8545/ws/v3/KEY"},
		{"https://eth.example.com", "wss://eth.example.com"},
	}

	for _, c := range cases {
		got := DeriveWebSocketURL(c.in)
		if got != c.want {
			t.Errorf("DeriveWebSocketURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
