package media

import (
	"path/filepath"
	"strings"
)

const (
	DownloadPrefix    = "vr180-"
	DownloadExtension = ".mp4"
)

// DownloadName derives the file name offered for a converted video.
//
// The name is the fixed prefix, the original stem with unsafe characters
// replaced, and the .mp4 extension. Example: "My Trip.MOV" becomes
// "vr180-My_Trip.mp4".
func DownloadName(original string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(original), "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	clean := strings.Trim(b.String(), "._")
	if clean == "" {
		clean = "video"
	}
	return DownloadPrefix + clean + DownloadExtension
}
