package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for destination operations.
var (
	ErrNotFound            = errors.New("object not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrThrottled           = errors.New("request throttled")
)

// ProviderError wraps a destination failure with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "PutObject").
	Op string

	Provider ProviderType

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	Err error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsAccessDenied(err error) bool       { return errors.Is(err, ErrAccessDenied) }
func IsBucketNotFound(err error) bool     { return errors.Is(err, ErrBucketNotFound) }
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }
func IsThrottled(err error) bool          { return errors.Is(err, ErrThrottled) }

func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
