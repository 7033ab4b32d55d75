package sqlite

import "testing"

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "relative path",
			input:    "sqlite://canon.db",
			expected: "./canon.db",
		},
		{
			name:     "explicit relative path",
			input:    "sqlite://./data/canon.db",
			expected: "./data/canon.db",
		},
		{
			name:     "absolute path",
			input:    "sqlite:///var/lib/canonkeeper/canon.db",
			expected: "/var/lib/canonkeeper/canon.db",
		},
		{
			name:     "in-memory",
			input:    "sqlite://:memory:",
			expected: ":memory:",
		},
		{
			name:     "path with query parameters",
			input:    "sqlite://canon.db?mode=ro",
			expected: "./canon.db?mode=ro",
		},
		{
			name:     "escaped path",
			input:    "sqlite://my%20world.db",
			expected: "./my world.db",
		},
		{
			name:    "wrong scheme",
			input:   "postgres://localhost/canon",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDSN(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Fatalf("parseDSN(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
