package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Configuration errors — fatal at startup.
	ErrConfigNotFound   = errors.New("configuration file not found")
	ErrConfigMalformed  = errors.New("configuration file is not valid YAML")
	ErrMissingField     = errors.New("configuration is missing a required field")
	ErrSelfNotInTopology = errors.New("self node id not present in topology")

	// Invalid input — 400 to client.
	ErrUnknownArch       = errors.New("unknown architecture")
	ErrMissingArchField  = errors.New("missing architecture field")

	// Policy violations — 403/500.
	ErrWrongRole       = errors.New("wrong role for this endpoint")
	ErrNoControllerAvailable = errors.New("no controller of the required role is available")
	ErrNoZoneController = errors.New("no controller available in the local zone")
	ErrNoCandidates    = errors.New("no candidate nodes available for selection")

	// Downstream failures — wrapped, returned as 500 with status "failed".
	ErrExecutionFailed = errors.New("function execution failed")
	ErrForwardFailed   = errors.New("forward to peer agent failed")
)
