package status

import "testing"

func TestAllowed(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{Created, Running, true},
		{Running, Done, true},
		{Running, Error, true},
		{Running, Paused, true},
		{Paused, Running, true},
		{Done, Created, true},
		{Error, Created, true},
		{Running, Created, true},
		{Created, Done, false},
		{Done, Running, false},
		{Paused, Done, false},
	}

	for _, c := range cases {
		if got := Allowed(c.from, c.to); got != c.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{Done, Error} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{Created, Running, Paused} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
