package explain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"canonkeeper/internal/backup"
	"canonkeeper/internal/ledger"
	"canonkeeper/internal/store"
	"canonkeeper/internal/validate"
)

func TestReport_Pass(t *testing.T) {
	report := &validate.Report{Status: validate.StatusPass}
	out := Report(report)
	if out.Message == "" || len(out.Remediation) != 0 {
		t.Fatalf("unexpected pass explanation: %+v", out)
	}
}

func TestReport_FailureCarriesFindingsAndRemedies(t *testing.T) {
	report := &validate.Report{Status: validate.StatusFail, Results: []validate.Result{{
		Layer:  validate.LayerRule,
		Status: validate.StatusFail,
		Messages: []validate.Message{{
			Code:     validate.CodeDuplicateValue,
			Severity: validate.SeverityError,
			Text:     `another character already has name "Mira"`,
		}},
	}}}

	out := Report(report)
	if !strings.Contains(out.Message, "Mira") {
		t.Fatalf("expected the finding text in the message, got %q", out.Message)
	}
	if len(out.Remediation) == 0 {
		t.Fatalf("expected remediation steps")
	}
	assertNoInternalCodes(t, out)
}

func TestReport_WarnOffersConfirmation(t *testing.T) {
	report := &validate.Report{Status: validate.StatusWarn, Results: []validate.Result{{
		Layer:  validate.LayerSemantic,
		Status: validate.StatusWarn,
		Messages: []validate.Message{{
			Code:     validate.CodeSemanticConcern,
			Severity: validate.SeverityWarning,
			Text:     "An unusually young ruler.",
		}},
	}}}

	out := Report(report)
	var offersConfirm bool
	for _, remedy := range out.Remediation {
		if strings.Contains(remedy, "Confirm") {
			offersConfirm = true
		}
	}
	if !offersConfirm {
		t.Fatalf("expected a confirm-or-cancel remedy, got %+v", out.Remediation)
	}
	assertNoInternalCodes(t, out)
}

func TestError_Translations(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"conflict":  {store.ErrConflict, "changed this part of the world"},
		"not found": {store.ErrNotFound, "doesn't exist"},
		"backup":    {backup.ErrBackupFailed, "Nothing was changed"},
		"decision":  {ledger.ErrInvalidDecision, "undone"},
		"unknown":   {errors.New("pq: deadlock detected"), "The world was not changed"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			out := Error(fmt.Errorf("wrapped: %w", tc.err))
			if !strings.Contains(out.Message, tc.want) {
				t.Fatalf("expected %q in %q", tc.want, out.Message)
			}
			if len(out.Remediation) == 0 {
				t.Fatalf("expected remediation steps")
			}
			assertNoInternalCodes(t, out)
		})
	}
}

// assertNoInternalCodes guards the boundary: users see prose, never the
// machine codes or raw driver errors.
func assertNoInternalCodes(t *testing.T, out Explanation) {
	t.Helper()
	all := out.Message + " " + strings.Join(out.Remediation, " ")
	for _, leaked := range []string{"_", "ErrConflict", "pq:", "sql"} {
		if strings.Contains(all, leaked) {
			t.Fatalf("explanation leaks internals (%q): %q", leaked, all)
		}
	}
}
