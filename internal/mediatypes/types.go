package mediatypes

import (
	"path/filepath"
	"strings"
)

// SortField specifies which field to sort by.
type SortField string

// SortOrder specifies the direction of sorting.
type SortOrder string

const (
	// SortByName sorts by filename (natural, case-insensitive).
	SortByName SortField = "name"
	// SortByDate sorts by modification time.
	SortByDate SortField = "date"
	// SortBySize sorts by file size.
	SortBySize SortField = "size"

	// SortAsc sorts in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts in descending order.
	SortDesc SortOrder = "desc"
)

// ImageExtensions lists the formats the pure-Go decoder handles.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".jpe":  true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// VipsExtensions lists formats that only the libvips decoder can open.
var VipsExtensions = map[string]bool{
	".heic": true,
	".heif": true,
	".avif": true,
	".svg":  true,
	".jp2":  true,
	".jxl":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jpe":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".svg":  "image/svg+xml",
	".jp2":  "image/jp2",
	".jxl":  "image/jxl",
}

// Ext returns the lowercase extension of path, including the leading dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsImage reports whether ext is decodable without libvips.
func IsImage(ext string) bool {
	return ImageExtensions[ext]
}

// IsSupported reports whether ext is decodable, counting libvips formats
// only when withVips is set.
func IsSupported(ext string, withVips bool) bool {
	return ImageExtensions[ext] || (withVips && VipsExtensions[ext])
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// FormatMimeType returns the MIME type of an encoded thumbnail format
// ("png", "jpeg").
func FormatMimeType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
