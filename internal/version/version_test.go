package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	if !strings.Contains(got, Version) || !strings.Contains(got, Commit) {
		t.Errorf("String() = %q, missing version or commit", got)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); !strings.HasPrefix(got, "socketmode-go/"+Version+" go") {
		t.Errorf("UserAgent() = %q", got)
	}
}
