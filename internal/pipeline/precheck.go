package pipeline

import (
	"strings"

	"venue-rails/internal/models"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/events"
)

// HoldReason is a structured reason for parking a record before an
// agent spends a provider call on it.
type HoldReason struct {
	Code errs.Code
	Note string
}

// String returns the note for logging/display.
func (r HoldReason) String() string {
	return string(r.Code) + ": " + r.Note
}

var (
	noUsableName = HoldReason{
		Code: errs.CodeMissingName,
		Note: "record has no usable name; nothing to summarize or resolve",
	}

	noLongFormText = HoldReason{
		Code: errs.CodeMissingDescriptionOrSum,
		Note: "record has no description or prior summary; the summarizer has no source text",
	}
)

// checkName verifies the record carries a name an agent can work with.
func checkName(v *models.Venue) (hold bool, reason HoldReason) {
	if strings.TrimSpace(v.Raw.Name) == "" {
		return true, noUsableName
	}
	return false, HoldReason{}
}

// checkLongForm verifies there is source text for the summarizer.
func checkLongForm(v *models.Venue) (hold bool, reason HoldReason) {
	if !v.HasDescriptionOrSummary() {
		return true, noLongFormText
	}
	return false, HoldReason{}
}

// precheck runs the input checks for one agent. A hold means the record
// goes back for revision without any provider call.
func precheck(agent string, v *models.Venue) (bool, HoldReason) {
	switch agent {
	case events.AgentSummarizer:
		if hold, reason := checkName(v); hold {
			return true, reason
		}
		return checkLongForm(v)
	case events.AgentEnricher:
		return checkName(v)
	default:
		// the editor grades whatever it is given
		return false, HoldReason{}
	}
}
