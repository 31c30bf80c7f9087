// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Error taxonomy for the pipeline. Per-record, recoverable failures
// (source, provider, extraction) are converted into decision reasons or
// statuses by the component that catches them; only configuration errors
// and invariant violations abort a run.
var (
	// ErrInvalidTransition signals an attempt to move a record backward
	// in the funnel, or to move a terminal record at all.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrSourceUnavailable marks a per-source failure: the run continues
	// without that source's results.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceAuth marks an authentication or rate-limit rejection,
	// distinguishable from transport failures per the source contract.
	ErrSourceAuth = errors.New("source authentication or rate limit rejected")

	// ErrProvider marks an LLM or embedding call failure after retries.
	ErrProvider = errors.New("provider call failed")
)

// ConfigError is a missing or inconsistent setting. It is fatal at run
// start, before any network activity.
type ConfigError string

func (e ConfigError) Error() string { return "configuration: " + string(e) }

// ErrConfiguration wraps msg as a ConfigError.
func ErrConfiguration(msg string) error { return ConfigError(msg) }

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce ConfigError
	return errors.As(err, &ce)
}
