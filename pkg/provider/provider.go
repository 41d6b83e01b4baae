// Package provider defines destinations for downloaded conversions.
//
// A destination receives the converted media under its download name. The
// local directory destination is the default; S3 and S3-compatible stores
// are supported for shared or remote archives.
package provider

import "io"

// ProviderType identifies a destination backend.
type ProviderType string

const (
	// ProviderFile is a local directory.
	ProviderFile ProviderType = "file"

	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"
)

func (p ProviderType) String() string {
	return string(p)
}

// Destination is a download target.
type Destination interface {
	ObjectPutter

	// Location describes where key ends up, for user-facing output
	// (e.g., "/home/me/Videos/vr180-clip.mp4" or "s3://bucket/prefix/key").
	Location(key string) string

	io.Closer
}
