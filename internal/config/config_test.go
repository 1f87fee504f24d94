package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MEET_SERVER", "")
	t.Setenv("STUN_SERVER", "")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("expected default server URL, got %q", cfg.ServerURL)
	}
	if cfg.STUNServer != DefaultSTUN {
		t.Errorf("expected default STUN server, got %q", cfg.STUNServer)
	}
	if cfg.TURNServer != "" {
		t.Errorf("TURN should be off by default, got %q", cfg.TURNServer)
	}
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("MEET_SERVER", "ws://env:8080/ws")
	t.Setenv("STUN_SERVER", "stun:env:3478")

	cfg, err := Load(Options{ServerURL: "ws://flag:9090/ws"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "ws://flag:9090/ws" {
		t.Errorf("flag should win over env, got %q", cfg.ServerURL)
	}
	if cfg.STUNServer != "stun:env:3478" {
		t.Errorf("env should win over default, got %q", cfg.STUNServer)
	}
}

func TestICEServersWithTURN(t *testing.T) {
	cfg := &Config{
		STUNServer: DefaultSTUN,
		TURNServer: "turn:relay.example.com",
		TURNUser:   "user",
		TURNPass:   "pass",
	}

	servers := cfg.ICEServers()
	if len(servers) != 2 {
		t.Fatalf("expected STUN plus TURN, got %d entries", len(servers))
	}
	if servers[0].URLs[0] != DefaultSTUN {
		t.Errorf("first entry should be STUN, got %v", servers[0].URLs)
	}
	turn := servers[1]
	if len(turn.URLs) != 2 {
		t.Fatalf("TURN should offer udp and tcp transports, got %v", turn.URLs)
	}
	if turn.URLs[0] != "turn:relay.example.com:3478?transport=udp" {
		t.Errorf("unexpected TURN URL %q", turn.URLs[0])
	}
	if turn.Username != "user" || turn.Credential != "pass" {
		t.Error("TURN credentials not carried through")
	}
}

func TestICEServersWithoutTURN(t *testing.T) {
	cfg := &Config{STUNServer: DefaultSTUN}
	if servers := cfg.ICEServers(); len(servers) != 1 {
		t.Errorf("expected STUN only, got %d entries", len(servers))
	}
}

func TestStatusURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"ws://localhost:8080/ws", "http://localhost:8080"},
		{"wss://meet.example.com/ws", "https://meet.example.com"},
		{"ws://10.0.0.5:9000", "http://10.0.0.5:9000"},
	}
	for _, tt := range tests {
		cfg := &Config{ServerURL: tt.server}
		if got := cfg.StatusURL(); got != tt.want {
			t.Errorf("StatusURL(%q) = %q, want %q", tt.server, got, tt.want)
		}
	}
}
