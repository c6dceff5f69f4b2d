package mirror

import "testing"

func TestSanitizeRelType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CAUSED_BY", "CAUSED_BY"},
		{"caused_by", "CAUSED_BY"},
		{"connected to", "CONNECTEDTO"},
		{"DOCUMENTED-IN", "DOCUMENTEDIN"},
		{"weird; DROP ALL", "WEIRDDROPALL"},
		{"", "RELATED_TO"},
		{"---", "RELATED_TO"},
	}
	for _, tt := range tests {
		if got := sanitizeRelType(tt.in); got != tt.want {
			t.Fatalf("sanitizeRelType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Component", "Component"},
		{"Fault_code", "Fault_code"},
		{"bad label!", "badlabel"},
		{"", "Entity"},
		{"$$", "Entity"},
	}
	for _, tt := range tests {
		if got := sanitizeLabel(tt.in); got != tt.want {
			t.Fatalf("sanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	m := New(nil, Options{}, nil)
	if m.limiter != nil {
		t.Fatal("zero WritesPerSecond must mean no limiter")
	}
	if m.breaker == nil || m.logger == nil {
		t.Fatal("breaker and logger must be set")
	}

	throttled := New(nil, Options{WritesPerSecond: 10}, nil)
	if throttled.limiter == nil {
		t.Fatal("expected limiter when WritesPerSecond > 0")
	}
}
