package tcpsrv

import "errors"

var (
	// ErrFramingOverflow is returned by Session.Feed when an octet-counted
	// length header exceeds 9 digits or the configured max frame size.
	ErrFramingOverflow = errors.New("tcpsrv: framing overflow")

	// ErrMalformedOctetCount is returned when a byte other than a digit
	// or the terminating space appears while reading an octet-counted
	// length header.
	ErrMalformedOctetCount = errors.New("tcpsrv: malformed octet count")

	// ErrNoListeners is returned by ConstructFinalize when no listener
	// was ever configured via ConfigureListen.
	ErrNoListeners = errors.New("tcpsrv: no listeners configured")

	// ErrListenerCapExceeded is returned by ConfigureListen once the
	// configured listener count would exceed the listener cap.
	ErrListenerCapExceeded = errors.New("tcpsrv: listener cap exceeded")

	// ErrAlreadyFinalized is returned by ConfigureListen once
	// ConstructFinalize has already run.
	ErrAlreadyFinalized = errors.New("tcpsrv: already finalized")
)
