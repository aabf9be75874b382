package session

import "testing"

func TestDefaultPagerPredicate(t *testing.T) {
	cases := map[string]bool{
		"<A>bort, <CR> Continue..>":   true,
		"<Abort, <CR>Continue.>":      true,
		"Press <CR> to continue":      true,
		"press <cr> to continue, sir": true,
		"hello world":                 false,
		"":                            false,
	}
	for line, want := range cases {
		if got := DefaultPagerPredicate(line); got != want {
			t.Errorf("DefaultPagerPredicate(%q) = %v, want %v", line, got, want)
		}
	}
}
