// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, wrapped with fmt.Errorf("...: %w") by callers.
var (
	// Capture errors
	ErrNotFound       = errors.New("netcarve: interface not found")
	ErrAlreadyRunning = errors.New("netcarve: capture already running")
	ErrNotRunning     = errors.New("netcarve: capture not running")

	// Packet decoding errors
	ErrPacketTooShort = errors.New("netcarve: packet too short")

	// Filter errors
	ErrInvalidFilter = errors.New("netcarve: invalid filter")

	// Capture file errors
	ErrUnknownFormat = errors.New("netcarve: unknown capture file format, expected pcap or pcapng")
)
