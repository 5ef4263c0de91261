package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates a queue item status edge that is not legal
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingIdentity indicates an approval without any resolvable patient id
	ErrMissingIdentity = errors.New("no patient identity resolved")

	// ErrAlreadyPublished indicates the item already carries an external document id
	ErrAlreadyPublished = errors.New("item already published")

	// ErrPublishFailed indicates the external record system rejected the upload
	ErrPublishFailed = errors.New("publish failed")

	// ErrExtractionFailed indicates no text could be recovered from a document
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrBlobMissing indicates the per-patient document bytes could not be loaded
	ErrBlobMissing = errors.New("document blob missing")

	// ErrPresignUnsupported indicates the blob backend cannot mint download links
	ErrPresignUnsupported = errors.New("presigned urls not supported")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials indicates a wrong operator email/password combination
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidCallback indicates a reviewer callback that could not be parsed
	ErrInvalidCallback = errors.New("invalid callback")
)
