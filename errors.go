package fathom

import "errors"

var (
	// ErrChainNotFound is returned when operating on an unregistered chain.
	ErrChainNotFound = errors.New("fathom: chain not found")

	// ErrShutdown is returned when operating on a shut-down Fathom instance.
	ErrShutdown = errors.New("fathom: instance has been shut down")

	// ErrNoDecoder is returned by WatchDecoded before any event is registered.
	ErrNoDecoder = errors.New("fathom: no decoder configured; call RegisterEvent first")

	// ErrInvalidConfig is returned for configuration that cannot work.
	ErrInvalidConfig = errors.New("fathom: invalid config")
)
