package library

import (
	"errors"
	"fmt"
)

var (
	ErrPermission    = errors.New("permission denied")
	ErrConfiguration = errors.New("invalid configuration")
)

// Capability names a read capability the scanner may need.
type Capability string

const (
	CapabilityAudio  Capability = "read_audio"
	CapabilityImages Capability = "read_images"
)

// PermissionError is returned when a required capability was not granted.
// The caller has to obtain the capability and retry.
type PermissionError struct {
	Capability Capability
	Message    string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Capability, e.Message)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermission
}

// ConfigurationError is returned for an inconsistent scan configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// RowError describes a row that could not be turned into a song.
type RowError struct {
	Index int
	Field string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: missing required field %s", e.Index, e.Field)
}
