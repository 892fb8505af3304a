package domain

import "errors"

// ErrBackendNotConfigured is the sentinel a Backend Adapter returns when a
// required piece of its own configuration (e.g. an endpoint URL) is
// missing. The retry wrapper treats this as immediately fatal: retrying a
// misconfigured adapter can never succeed.
var ErrBackendNotConfigured = errors.New("backend adapter not configured")

// ErrNotFound is returned by Store reads that find no matching row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyClaimed is returned by ClaimPageJob when another worker won the
// race; it is not an application error, just a signal to move on.
var ErrAlreadyClaimed = errors.New("page job already claimed")
