package marketplace

import "errors"

var (
	// ErrTemplateNotFound is returned for unknown template IDs
	ErrTemplateNotFound = errors.New("template not found")

	// ErrVersionNotFound is returned when a template has no such version
	ErrVersionNotFound = errors.New("template version not found")

	// ErrInvalidTemplate is returned when a manifest fails validation
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrVersionExists is returned when publishing a version twice
	ErrVersionExists = errors.New("template version already published")

	// ErrChecksumMismatch is returned when downloaded content does not match its checksum
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrVerificationFailed is returned when an installed plugin is rejected
	ErrVerificationFailed = errors.New("plugin verification failed")

	// ErrNotInstalled is returned when updating a template that is not installed
	ErrNotInstalled = errors.New("template not installed")
)
