package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/provider"
	"github.com/3leaps/vr180/pkg/provider/file"
	"github.com/3leaps/vr180/pkg/provider/s3"
)

// Destination parsing errors
var (
	// ErrInvalidURI indicates the destination could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates an s3 URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// DestinationURI is a parsed download destination.
//
// Example destinations:
//   - ./downloads
//   - file:///home/me/videos
//   - s3://bucket/converted/
type DestinationURI struct {
	Provider provider.ProviderType

	// Bucket is set for s3 destinations.
	Bucket string

	// Prefix is the key prefix for s3 or the directory for file
	// destinations.
	Prefix string
}

// String returns the destination in canonical form.
func (u *DestinationURI) String() string {
	if u.Provider == provider.ProviderS3 {
		return fmt.Sprintf("s3://%s/%s", u.Bucket, u.Prefix)
	}
	return "file://" + filepath.ToSlash(u.Prefix)
}

// ParseDestination parses a directory path, a file:// URI or an s3:// URI.
func ParseDestination(raw string) (*DestinationURI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty destination", ErrInvalidURI)
	}

	schemeEnd := strings.Index(raw, "://")
	if schemeEnd == -1 {
		return &DestinationURI{Provider: provider.ProviderFile, Prefix: filepath.Clean(raw)}, nil
	}

	scheme := strings.ToLower(raw[:schemeEnd])
	remainder := raw[schemeEnd+3:]

	switch provider.ProviderType(scheme) {
	case provider.ProviderFile:
		if remainder == "" {
			return nil, fmt.Errorf("%w: missing path in %s", ErrInvalidURI, raw)
		}
		return &DestinationURI{Provider: provider.ProviderFile, Prefix: filepath.Clean(filepath.FromSlash(remainder))}, nil
	case provider.ProviderS3:
	default:
		return nil, fmt.Errorf("%w: %s (supported: file, s3)", ErrUnsupportedProvider, scheme)
	}

	bucket, key, _ := strings.Cut(remainder, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, raw)
	}
	if _, err := url.Parse("s3://" + bucket + "/"); err != nil {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}
	if strings.ContainsAny(key, "*?[{") {
		return nil, fmt.Errorf("%w: destination %q must not contain glob characters", ErrInvalidURI, raw)
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return &DestinationURI{Provider: provider.ProviderS3, Bucket: bucket, Prefix: key}, nil
}

// destinationOptions carries the download flags.
type destinationOptions struct {
	Overwrite bool
	Region    string
	Profile   string
	Endpoint  string
}

// openDestination connects to the destination named by raw.
func openDestination(ctx context.Context, raw string, opts destinationOptions) (provider.Destination, error) {
	dst, err := ParseDestination(raw)
	if err != nil {
		return nil, err
	}
	if dst.Provider == provider.ProviderFile {
		p, err := file.New(file.Config{BaseDir: dst.Prefix, Overwrite: opts.Overwrite})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := s3.New(ctx, s3.Config{
		Bucket:         dst.Bucket,
		Prefix:         dst.Prefix,
		Region:         opts.Region,
		Profile:        opts.Profile,
		Endpoint:       opts.Endpoint,
		ForcePathStyle: opts.Endpoint != "",
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// downloadExitError maps a failed download onto an exit code.
func downloadExitError(err error) error {
	switch {
	case job.IsNotFound(err):
		return exitError(foundry.ExitFileNotFound, "Converted video not available", err)
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		printAWSCredentialsHelp()
		return exitError(foundry.ExitInvalidArgument, "Destination rejected credentials", err)
	case provider.IsBucketNotFound(err):
		return exitError(foundry.ExitInvalidArgument, "Destination bucket does not exist", err)
	case provider.IsThrottled(err), provider.IsProviderUnavailable(err):
		return exitError(foundry.ExitExternalServiceUnavailable, "Destination unavailable", err)
	}
	return exitError(foundry.ExitFileWriteError, "Failed to save converted video", err)
}
