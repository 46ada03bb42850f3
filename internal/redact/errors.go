package redact

import (
	"fmt"
	"time"
)

// InputError reports text that cannot be redacted, for example because it is
// not valid UTF-8. When it is returned no redaction has been applied.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input error: %s: %v", e.Reason, e.Err)
	}
	return "input error: " + e.Reason
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// MatchTimeoutError reports a rule whose matching exceeded its time budget.
// The rule's spans are dropped for that input; other rules still apply.
type MatchTimeoutError struct {
	Rule    string
	Timeout time.Duration
}

func (e *MatchTimeoutError) Error() string {
	return fmt.Sprintf("rule %q exceeded match timeout of %s", e.Rule, e.Timeout)
}
