package webos

import "errors"

// Error kinds surfaced by the session layer. Callers distinguish them with
// errors.Is; the facade maps each to a stable error code.
var (
	// ErrConnectivity means the transport could not be established at all
	// (host unreachable, connection refused). Not retried at this layer.
	ErrConnectivity = errors.New("tv unreachable")

	// ErrPairingTimeout means the on-screen prompt was not accepted within
	// the pairing window.
	ErrPairingTimeout = errors.New("pairing not accepted in time")

	// ErrPairingRejected means the TV refused the registration, either
	// because a stored credential was revoked or the user declined the
	// prompt. A stale credential is discarded before this is returned.
	ErrPairingRejected = errors.New("pairing rejected by tv")

	// ErrCommandTimeout means no correlated response arrived within the
	// per-call deadline. The pending entry has been removed.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrProtocol means the session broke mid-flight: transport closed with
	// requests outstanding, or the TV sent something unusable.
	ErrProtocol = errors.New("session protocol failure")

	// ErrClosedMidFlight is the specific ErrProtocol case of the transport
	// closing while a request waited. Power-off treats it as acceptance,
	// since the TV dropping the link on its way to standby is expected.
	ErrClosedMidFlight = errors.New("session closed with request in flight")
)
