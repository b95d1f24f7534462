package arc

import (
	"path/filepath"
	"strings"
)

// allowedFileTypes maps accepted file extensions to MIME types.
var allowedFileTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"txt":  "text/plain",
	"md":   "text/plain",
	"pdf":  "application/pdf",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"ogg":  "audio/ogg",
}

// FileTypeFromName returns the MIME type for a document name's extension.
// ok is false when the extension is missing or not accepted.
func FileTypeFromName(name string) (mime string, ok bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return "", false
	}
	mime, ok = allowedFileTypes[ext]
	return mime, ok
}
