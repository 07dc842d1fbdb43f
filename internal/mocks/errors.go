package mocks

import "errors"

// ErrUnavailable is a generic tier outage for tests
var ErrUnavailable = errors.New("mock: storage unavailable")

var errTransient = errors.New("mock: transient write failure")
