// Package rferrors defines the sentinel error kinds from spec §7, so
// callers can branch on failure class with errors.Is/errors.As instead of
// string matching.
package rferrors

import "errors"

var (
	// ErrConfigError means required configuration was missing or invalid;
	// the controller must abort before taking the lock.
	ErrConfigError = errors.New("rapidflow: configuration error")

	// ErrLockHeld means another controller instance already owns the
	// lockfile; the current invocation exits cleanly without touching
	// outputs.
	ErrLockHeld = errors.New("rapidflow: lock already held")

	// ErrLockfileCorruption means the lockfile exists but could not be
	// parsed; operator repair is required.
	ErrLockfileCorruption = errors.New("rapidflow: lockfile corrupt")

	// ErrUpstreamUnavailable means listing or downloading the upstream
	// release failed after retries; the cycle is abandoned and the
	// watermark is not advanced.
	ErrUpstreamUnavailable = errors.New("rapidflow: upstream unavailable")

	// ErrInvalidGrid means a grid forecast file failed dimension/variable
	// validation.
	ErrInvalidGrid = errors.New("rapidflow: invalid grid")

	// ErrWeightTableMalformed means a weight table CSV was missing its
	// header, had short rows, or its npoints column disagreed with actual
	// group size.
	ErrWeightTableMalformed = errors.New("rapidflow: weight table malformed")

	// ErrGroupStreamIDInconsistent means a weight table group's rows
	// named more than one StreamID.
	ErrGroupStreamIDInconsistent = errors.New("rapidflow: weight table group spans multiple stream ids")

	// ErrKernelNonzeroExit means the routing kernel child process exited
	// non-zero; fatal for the member, not for the cycle.
	ErrKernelNonzeroExit = errors.New("rapidflow: routing kernel exited non-zero")

	// ErrAssimilationMissingInputs means neither a prior Qinit nor a
	// historical file was available; the caller should initialize with
	// zeros and warn.
	ErrAssimilationMissingInputs = errors.New("rapidflow: no assimilation inputs available")

	// ErrNetworkTransient means a measurement-service or upload call
	// failed after exhausting its retry budget; the caller skips the
	// specific gage/upload and continues.
	ErrNetworkTransient = errors.New("rapidflow: transient network failure")
)
