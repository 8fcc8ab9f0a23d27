package errs_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"loopmodel/internal/errs"
)

func TestErrorMessage(t *testing.T) {
	err := errs.AtLine(errs.Configf("hi(1)", "unresolved symbol %q", "hi(1)"), 42)
	msg := err.Error()
	for _, want := range []string{"configuration error", "loop 42", "hi(1)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestIsKindThroughWrapping(t *testing.T) {
	base := errs.Structuralf("cond_a", "condition not declared")
	wrapped := fmt.Errorf("function advance: %w", base)

	if !errs.IsKind(wrapped, errs.Structural) {
		t.Error("expected wrapped error to classify as structural")
	}
	if errs.IsKind(wrapped, errs.Configuration) {
		t.Error("structural error misclassified as configuration")
	}
	if errs.IsKind(fmt.Errorf("plain"), errs.Invariant) {
		t.Error("unclassified error reported a kind")
	}
}

func TestAtLineKeepsExistingLine(t *testing.T) {
	err := errs.AtLine(errs.Invariantf("a", "mismatch"), 7)
	err = errs.AtLine(err, 9)
	if !strings.Contains(err.Error(), "loop 7") {
		t.Errorf("inner line overwritten: %v", err)
	}
	if errs.AtLine(nil, 3) != nil {
		t.Error("AtLine(nil) should be nil")
	}
}

func TestAtLineKeepsWrappedContext(t *testing.T) {
	err := errs.AtLine(fmt.Errorf("traffic of a: %w", errs.Invariantf("region", "no reads or writes")), 12)
	if msg := err.Error(); !strings.HasPrefix(msg, "traffic of a: ") || !strings.Contains(msg, "at loop 12") {
		t.Errorf("message = %q", msg)
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Line != 12 || e.Kind != errs.Invariant {
		t.Errorf("classified error = %+v", e)
	}
}
