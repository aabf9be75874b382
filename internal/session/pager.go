package session

import "regexp"

// PagerPredicate decides, from one line of text the remote side has sent,
// whether it is a "press a key to continue" pager prompt. The engine
// itself never inspects inbound text for this; the terminal layer applies
// a PagerPredicate to what it displays and reports the result through
// Terminal.PagerPending.
type PagerPredicate func(line string) bool

var pagerPromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*A\s*>?bort,\s*<\s*CR\s*>\s*Continue\.\.?>`),
	regexp.MustCompile(`(?i)press\s*<\s*cr\s*>\s*to\s*continue`),
}

// DefaultPagerPredicate matches the two prompt shapes most BBS pagers
// emit: "<A>bort, <CR> Continue..>" and "press <CR> to continue".
func DefaultPagerPredicate(line string) bool {
	for _, p := range pagerPromptPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
