package errs

import (
	"errors"
	"testing"
)

func TestTimeoutErr(t *testing.T) {
	if !IsTimeoutErr(NewTimeoutErr("acquire timed out")) {
		t.Errorf("IsTimeoutErr() test-1 failed")
	}

	if IsTimeoutErr(errors.New("acquire timed out")) {
		t.Errorf("IsTimeoutErr() test-2 failed")
	}
}

func TestShutdownErr(t *testing.T) {
	if !IsShutdownErr(NewDefaultShutdownErr()) {
		t.Errorf("IsShutdownErr() test-1 failed")
	}

	if IsShutdownErr(NewTimeoutErr("timeout")) {
		t.Errorf("IsShutdownErr() test-2 failed")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{NewConfigErr("min_sessions exceeds max_sessions"), "min_sessions exceeds max_sessions"},
		{NewConnectionErr("connect refused"), "connect refused"},
		{NewQueryErr("syntax error"), "syntax error"},
		{NewIllegalStateErr("transaction already active"), "transaction already active"},
	}
	for _, c := range cases {
		if c.err.Error() != c.want {
			t.Errorf("Error() = %q, want %q", c.err.Error(), c.want)
		}
	}
}

func TestPredicatesDisjoint(t *testing.T) {
	if IsConfigErr(NewConnectionErr("x")) {
		t.Errorf("ConfigErr predicate matched ConnectionErr")
	}
	if IsQueryErr(NewIllegalStateErr("x")) {
		t.Errorf("QueryErr predicate matched IllegalStateErr")
	}
}
