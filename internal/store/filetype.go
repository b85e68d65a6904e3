package store

import (
	"path/filepath"
	"strings"
)

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tiff": {}, ".webp": {},
}

var textExts = map[string]struct{}{
	".txt": {}, ".md": {}, ".csv": {}, ".json": {}, ".xml": {}, ".log": {},
	".py": {}, ".js": {}, ".html": {}, ".css": {}, ".go": {}, ".yaml": {}, ".yml": {},
}

var documentExts = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".odt": {}, ".rtf": {},
}

var videoExts = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {},
}

var audioExts = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".aac": {}, ".ogg": {},
}

// DetectFileType classifies a path by extension.
func DetectFileType(path string) FileType {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case has(imageExts, ext):
		return FileTypeImage
	case has(textExts, ext):
		return FileTypeText
	case has(documentExts, ext):
		return FileTypeDocument
	case has(videoExts, ext):
		return FileTypeVideo
	case has(audioExts, ext):
		return FileTypeAudio
	default:
		return FileTypeUnknown
	}
}

// TextBearing reports whether extraction should be attempted for this type.
func (t FileType) TextBearing() bool {
	return t == FileTypeText || t == FileTypeDocument || t == FileTypeImage
}

func has(m map[string]struct{}, ext string) bool {
	_, ok := m[ext]
	return ok
}
