// Package desktop holds the operating-system adapters the notification
// queue drives: native notification presenters, the alert sound and the
// URL opener used to bring a clicked notification's target forward.
//
// The D-Bus presenter is linux only; other platforms get a stub whose
// constructor returns ErrUnsupported, and callers fall back to LogPresenter.
package desktop

import "errors"

// ErrUnsupported is returned by adapters that have no implementation on
// the running OS.
var ErrUnsupported = errors.New("desktop: unsupported OS")
