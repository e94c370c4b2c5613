package ontology

import (
	"fmt"

	errs "venue-rails/pkg/errors"
)

// Issue is one validation finding.
type Issue struct {
	Code    errs.Code `json:"code"`
	Entry   string    `json:"entry,omitempty"`
	Surface string    `json:"surface,omitempty"`
	Msg     string    `json:"msg"`
}

// Report aggregates validation findings and dictionary counters.
type Report struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
	Entries  int     `json:"entries"`
	Surfaces int     `json:"surfaces"`
	Tags     int     `json:"tags"`
}

func (r *Report) addError(i Issue)   { r.Errors = append(r.Errors, i) }
func (r *Report) addWarning(i Issue) { r.Warnings = append(r.Warnings, i) }

// Healthy reports whether the dictionary has no validation errors.
func (r *Report) Healthy() bool { return len(r.Errors) == 0 }

// Err returns nil when healthy, otherwise a validation error carrying the
// first finding's code.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	return errs.NewValidationCode("ontology.Validate", first.Code,
		fmt.Sprintf("%s (and %d more)", first.Msg, len(r.Errors)-1))
}

// Validate returns the validation report. The dictionary is immutable after
// load, so the report is computed once and re-reads are cheap.
func (o *Ontology) Validate() *Report { return o.report }

// validateEntries runs the semantic checks that need the finished indexes:
// expansion tags must exist in the universe, and every entry should be
// reachable through at least one surface.
func validateEntries(o *Ontology, report *Report) {
	reachable := make(map[string]bool, len(o.entries))
	for _, sf := range o.aliases {
		reachable[sf.Entry.Canonical] = true
	}

	for _, e := range o.entries {
		for _, x := range e.Expansions {
			if _, ok := o.tags[x]; !ok {
				report.addError(Issue{
					Code:    errs.CodeInvalidTags,
					Entry:   e.Canonical,
					Surface: x,
					Msg:     fmt.Sprintf("expansion tag %q of %q is not in the tag universe", x, e.Canonical),
				})
			}
		}
		if len(e.Synonyms) == 0 {
			report.addWarning(Issue{
				Entry: e.Canonical,
				Msg:   fmt.Sprintf("entry %q has no synonyms", e.Canonical),
			})
		}
		if !reachable[e.Canonical] {
			report.addWarning(Issue{
				Entry: e.Canonical,
				Msg:   fmt.Sprintf("entry %q is unreachable: no surface resolves to it", e.Canonical),
			})
		}
	}
}
