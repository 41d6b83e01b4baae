// Package media owns converted video payloads.
//
// A Handle holds the bytes of one converted video, in memory or spooled to
// a file. A Registry hands out revocable references to handles so the
// presentation layer can stream media without owning it.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultMaxMemoryBytes controls how large a payload is kept in memory.
	// Larger payloads are spooled to a temp file.
	DefaultMaxMemoryBytes int64 = 32 << 20 // 32 MiB
)

var (
	// ErrReleased is returned when opening a handle whose payload is gone.
	ErrReleased = errors.New("media handle released")

	// ErrTooLarge is returned when a payload exceeds the spool limit.
	ErrTooLarge = errors.New("media payload exceeds size limit")
)

// SpoolOptions controls where payload bytes are kept.
type SpoolOptions struct {
	// MaxMemoryBytes is the largest payload kept in memory. Zero uses
	// DefaultMaxMemoryBytes.
	MaxMemoryBytes int64

	// MaxBytes rejects payloads larger than this. Zero means unlimited.
	MaxBytes int64

	// TempDir is where large payloads are spooled. Empty uses os.TempDir.
	TempDir string

	// ContentType is recorded on the handle.
	ContentType string
}

// Handle exclusively owns one media payload until released.
//
// Handle is safe for concurrent use. Readers returned by Open stay valid
// until closed even if the handle is released meanwhile.
type Handle struct {
	mu          sync.Mutex
	data        []byte
	path        string
	temp        bool
	persisted   bool
	size        int64
	contentType string
	released    bool
}

// Spool reads src to completion into a new handle. size is a hint; a
// negative size means unknown and always spools to disk.
func Spool(ctx context.Context, src io.Reader, size int64, opts SpoolOptions) (*Handle, error) {
	maxMemory := opts.MaxMemoryBytes
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemoryBytes
	}
	if opts.MaxBytes > 0 && size > opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, opts.MaxBytes)
	}

	src = &ctxReader{ctx: ctx, r: src}
	limit := int64(-1)
	if opts.MaxBytes > 0 {
		limit = opts.MaxBytes
		src = io.LimitReader(src, opts.MaxBytes+1)
	}

	if size >= 0 && size <= maxMemory {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, err
		}
		if limit >= 0 && int64(len(data)) > limit {
			return nil, ErrTooLarge
		}
		return &Handle{data: data, size: int64(len(data)), contentType: opts.ContentType}, nil
	}

	f, err := os.CreateTemp(opts.TempDir, "vr180-media-*")
	if err != nil {
		return nil, err
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil && limit >= 0 && n > limit {
		copyErr = ErrTooLarge
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(f.Name())
		return nil, copyErr
	}

	return &Handle{path: f.Name(), temp: true, size: n, contentType: opts.ContentType}, nil
}

// FromBytes wraps an in-memory payload.
func FromBytes(data []byte, contentType string) *Handle {
	return &Handle{data: data, size: int64(len(data)), contentType: contentType}
}

// Adopt wraps a previously persisted payload file.
func Adopt(path string) (*Handle, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("media path is a directory: %s", path)
	}
	return &Handle{path: path, persisted: true, size: st.Size()}, nil
}

// Open returns a new reader over the payload.
func (h *Handle) Open() (io.ReadSeekCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, ErrReleased
	}
	if h.path == "" {
		return nopCloser{bytes.NewReader(h.data)}, nil
	}
	return os.Open(h.path)
}

// Persist moves the payload into dir under name so it survives restarts.
// It returns the final path.
func (h *Handle) Persist(dir, name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return "", ErrReleased
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	dst := filepath.Join(dir, name)

	switch {
	case h.path == "":
		if err := writeFileAtomic(dst, bytes.NewReader(h.data)); err != nil {
			return "", err
		}
		h.data = nil
	case h.path == dst:
		return dst, nil
	default:
		if err := os.Rename(h.path, dst); err != nil {
			// Cross-device: fall back to copy.
			src, openErr := os.Open(h.path)
			if openErr != nil {
				return "", fmt.Errorf("persist media: %w", err)
			}
			copyErr := writeFileAtomic(dst, src)
			_ = src.Close()
			if copyErr != nil {
				return "", copyErr
			}
			if h.temp {
				_ = os.Remove(h.path)
			}
		}
	}

	h.path = dst
	h.temp = false
	h.persisted = true
	return dst, nil
}

// Release frees the payload. Temp files and memory are reclaimed;
// persisted files stay on disk. Release is idempotent.
func (h *Handle) Release() error {
	return h.release(false)
}

// Discard releases the payload and also removes a persisted file.
func (h *Handle) Discard() error {
	return h.release(true)
}

func (h *Handle) release(removePersisted bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true
	h.data = nil

	if h.path == "" {
		return nil
	}
	if h.temp || (h.persisted && removePersisted) {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove media file: %w", err)
		}
	}
	return nil
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func (h *Handle) Size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Path returns the backing file, or "" for in-memory payloads.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

func (h *Handle) ContentType() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.contentType == "" {
		return "video/mp4"
	}
	return h.contentType
}

func writeFileAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write media file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close media file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename media file: %w", err)
	}
	return nil
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
