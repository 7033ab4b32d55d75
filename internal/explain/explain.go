package explain

import (
	"errors"
	"strings"

	"canonkeeper/internal/backup"
	"canonkeeper/internal/ledger"
	"canonkeeper/internal/store"
	"canonkeeper/internal/validate"
)

// Explanation is what the presentation layer shows: plain language plus
// concrete next steps, never internal codes or predicate text.
type Explanation struct {
	Message     string   `json:"message"`
	Remediation []string `json:"remediation,omitempty"`
}

// Report translates a validation report into user-facing language.
func Report(report *validate.Report) Explanation {
	if report == nil {
		return Explanation{Message: "Nothing was checked."}
	}

	var lines []string
	remediation := map[string]struct{}{}
	order := []string{}
	addRemedy := func(remedy string) {
		if _, seen := remediation[remedy]; !seen {
			remediation[remedy] = struct{}{}
			order = append(order, remedy)
		}
	}

	for _, msg := range report.Messages() {
		lines = append(lines, friendlyText(msg))
		for _, remedy := range remediesFor(msg.Code) {
			addRemedy(remedy)
		}
	}

	switch report.Status {
	case validate.StatusPass:
		return Explanation{Message: "The change is consistent with everything established so far."}
	case validate.StatusWarn:
		return Explanation{
			Message:     "The change can go ahead, but a few things are worth a look:\n" + bulleted(lines),
			Remediation: append(order, "Confirm to save the change as-is, or cancel and adjust it."),
		}
	default:
		return Explanation{
			Message:     "The change conflicts with what is already established:\n" + bulleted(lines),
			Remediation: order,
		}
	}
}

// Error translates an internal failure into user-facing language.
func Error(err error) Explanation {
	switch {
	case err == nil:
		return Explanation{Message: "Everything worked."}
	case errors.Is(err, store.ErrConflict):
		return Explanation{
			Message: "Someone (or another session) changed this part of the world since you last looked at it.",
			Remediation: []string{
				"Reload the current version and review what changed.",
				"Re-apply your edit on top of the latest version.",
			},
		}
	case errors.Is(err, store.ErrNotFound):
		return Explanation{
			Message: "That part of the world doesn't exist (or was removed).",
			Remediation: []string{
				"Check the name or pick it from the current list.",
				"If it was deleted, restore the backup taken before the deletion.",
			},
		}
	case errors.Is(err, backup.ErrBackupFailed):
		return Explanation{
			Message: "A safety backup could not be created, so the operation was not started. Nothing was changed.",
			Remediation: []string{
				"Check that the backup location is writable and has free space.",
				"Try the operation again once backups work.",
			},
		}
	case errors.Is(err, ledger.ErrInvalidDecision):
		return Explanation{
			Message: "The choice could not be recorded because the record doesn't line up with the options that were offered. The related change was undone to keep the history accurate.",
			Remediation: []string{
				"Pick again from the options as presented.",
			},
		}
	default:
		return Explanation{
			Message: "Something went wrong while saving your work. The world was not changed.",
			Remediation: []string{
				"Try again; if it keeps failing, restore the most recent backup.",
			},
		}
	}
}

func friendlyText(msg validate.Message) string {
	// Layer text is already written for people; codes are not.
	return msg.Text
}

func remediesFor(code string) []string {
	switch code {
	case validate.CodeMissingRequired, validate.CodeKindMismatch, validate.CodeEnumInvalid:
		return []string{"Fill in or correct the highlighted details and try again."}
	case validate.CodeUnknownEntityType, validate.CodeUnknownRelType:
		return []string{"Use one of the kinds defined for this world, or extend the world's schema first."}
	case validate.CodeEndpointMissing:
		return []string{"Create the missing thing first, then connect to it."}
	case validate.CodeEndpointTombstoned:
		return []string{"That one was removed from the world; restore it or connect to something else."}
	case validate.CodeDuplicateValue:
		return []string{"Choose a different name, or edit the existing one instead of creating a duplicate."}
	case validate.CodeTemporalOrder:
		return []string{"Adjust the dates so consequences come after their causes."}
	case validate.CodeExclusiveHeld:
		return []string{"End the current holder's claim first, or choose a different target."}
	case validate.CodeOracleUnavailable, validate.CodeOracleSkipped:
		return []string{"The automated consistency read-through was skipped; consider re-reading related lore yourself."}
	default:
		return nil
	}
}

func bulleted(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("  - ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
