package utils

import "testing"

func TestMatchResource(t *testing.T) {
	cases := []struct {
		resource string
		pattern  string
		want     bool
	}{
		{"docs", "docs", true},
		{"docs", "reports", false},
		{"anything:at:all", "*", true},
		{"doc:1", "doc:*", true},
		{"doc:", "doc:*", true},
		{"mydoc:1", "doc:*", false},
		{"doc:eu:42", "doc:*:42", true},
		{"doc:eu:43", "doc:*:42", false},
		{"archive-2026", "*-2026", true},
		{"archive-2025", "*-2026", false},
		// starless patterns never match a different name
		{"doc:1", "doc:1.", false},
		// regex metacharacters in patterns stay literal
		{"doc.1", "doc.1", true},
		{"docX1", "doc.*", false},
		{"doc.tmp", "doc.*", true},
	}
	for _, tc := range cases {
		if got := MatchResource(tc.resource, tc.pattern); got != tc.want {
			t.Errorf("MatchResource(%q, %q) = %v, want %v", tc.resource, tc.pattern, got, tc.want)
		}
	}
}

func TestCompileResourcePatternReuse(t *testing.T) {
	re, err := CompileResourcePattern("doc:*:read")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !re.MatchString("doc:eu:read") || re.MatchString("doc:eu:write") {
		t.Fatalf("compiled pattern misbehaved")
	}
	if re.String() != `^doc:.*:read$` {
		t.Fatalf("unexpected expression %q", re.String())
	}
}
