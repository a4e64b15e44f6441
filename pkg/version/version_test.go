package version

import "testing"

func TestVersionFallbacks(t *testing.T) {
	oldTag, oldCommit, oldDate := tag, commit, date
	t.Cleanup(func() { tag, commit, date = oldTag, oldCommit, oldDate })

	tag, commit, date = "", "unknown", "unknown"
	if got := String(); got != "dev" {
		t.Errorf("String() = %q, want dev", got)
	}
	if got := Full("server"); got != "server dev" {
		t.Errorf("Full() = %q", got)
	}

	commit, date = "abc1234", "2026-01-01"
	if got := String(); got != "abc1234" {
		t.Errorf("String() = %q, want abc1234", got)
	}

	tag = "v0.3.0"
	if got := Full("client"); got != "client v0.3.0 (abc1234) built 2026-01-01" {
		t.Errorf("Full() = %q", got)
	}
}
