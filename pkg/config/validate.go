package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	scholarerrors "github.com/ajitpratap0/scholar/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-field rules the struct tags
// cannot express.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return scholarerrors.Wrap(err, scholarerrors.ErrorTypeConfig, "invalid configuration")
		}
		for _, fe := range ve {
			problems = append(problems, describe(fe))
		}
	}

	if start, end, err := c.Calendar.Bounds(); err == nil && end.Before(start) {
		problems = append(problems, fmt.Sprintf("calendar.end %s is before calendar.start %s", c.Calendar.End, c.Calendar.Start))
	}

	seen := make(map[int]bool, len(c.Semesters.Terms))
	for _, term := range c.Semesters.Terms {
		if seen[term.Key] {
			problems = append(problems, fmt.Sprintf("semesters.terms: duplicate key %d", term.Key))
		}
		seen[term.Key] = true
	}
	if c.Semesters.Fallback != 0 && !seen[c.Semesters.Fallback] {
		problems = append(problems, fmt.Sprintf("semesters.fallback %d is not a configured term key", c.Semesters.Fallback))
	}

	logical := make(map[string]string)
	for _, src := range c.Sources.All() {
		for _, t := range src.Tables {
			if owner, dup := logical[t.As]; dup {
				problems = append(problems, fmt.Sprintf("sources: logical name %q used by both %s and %s", t.As, owner, src.Name))
			}
			logical[t.As] = src.Name
		}
		if src.Driver == "csv" && len(src.Tables) > 1 {
			problems = append(problems, fmt.Sprintf("sources.%s: a csv source maps exactly one table", src.Name))
		}
		if src.Driver != "csv" {
			for _, t := range src.Tables {
				if t.Table == "" {
					problems = append(problems, fmt.Sprintf("sources.%s: table name required for %s", src.Name, t.As))
				}
			}
		}
	}
	for _, name := range append(append([]string{}, c.Conform.StudentPrecedence...), c.Conform.CoursePrecedence...) {
		if _, ok := logical[name]; !ok && len(logical) > 0 {
			problems = append(problems, fmt.Sprintf("conform: precedence names unknown source table %q", name))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return scholarerrors.New(scholarerrors.ErrorTypeConfig, "invalid configuration: "+strings.Join(problems, "; ")).
		WithDetail("problems", problems)
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
	if fe.Param() != "" {
		return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s fails %s", field, fe.Tag())
}
