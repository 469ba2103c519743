package warehouse

import (
	"strings"

	"github.com/ajitpratap0/scholar/pkg/config"
)

// SemesterLookup maps semester labels to dim_semester keys. It is immutable
// after construction.
type SemesterLookup struct {
	terms    []config.SemesterTerm
	byName   map[string]int
	fallback int
}

// NewSemesterLookup builds a lookup from configuration. Label matching
// ignores case and surrounding whitespace.
func NewSemesterLookup(cfg config.SemesterConfig) *SemesterLookup {
	l := &SemesterLookup{
		terms:    append([]config.SemesterTerm(nil), cfg.Terms...),
		byName:   make(map[string]int, len(cfg.Terms)),
		fallback: cfg.Fallback,
	}
	for _, t := range cfg.Terms {
		l.byName[normalizeLabel(t.Name)] = t.Key
	}
	return l
}

// Key returns the key of label. Unknown labels resolve to the fallback key
// and report false.
func (l *SemesterLookup) Key(label string) (int, bool) {
	if k, ok := l.byName[normalizeLabel(label)]; ok {
		return k, true
	}
	return l.fallback, false
}

// Fallback returns the key used for unmapped labels.
func (l *SemesterLookup) Fallback() int {
	return l.fallback
}

// Terms returns the configured terms in order.
func (l *SemesterLookup) Terms() []config.SemesterTerm {
	return append([]config.SemesterTerm(nil), l.terms...)
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
