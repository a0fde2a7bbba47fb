package cli

import "errors"

// Sentinel errors for the failure classes that surface at the
// configuration layer. The run-creation and merge errors from pkg/sorter,
// pkg/streamio, and pkg/runio are wrapped, not re-declared, when they
// propagate up to Run.
var (
	errConfigInvalid      = errors.New("invalid configuration")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigFileNotFound = errors.New("config file not found")
	errUnknownLocale      = errors.New("unknown locale")
)
