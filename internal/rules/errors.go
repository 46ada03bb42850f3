package rules

import "fmt"

// ConfigError reports an unusable pattern file or rule. It is raised at load
// time, before any text is redacted.
type ConfigError struct {
	Path string
	Rule string
	Err  error
}

func (e *ConfigError) Error() string {
	msg := "pattern config error"
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Rule != "" {
		msg += fmt.Sprintf(": rule %q", e.Rule)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
