package constants

import "strings"

// FileType is the coarse modality bucket a stored document falls into.
type FileType string

const (
	PDF   FileType = "PDF"
	IMAGE FileType = "IMAGE"
	TXT   FileType = "TXT"
)

// AllowedExtensions holds the default allowed file extensions for uploaded documents.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat buckets an extension into a FileType. Unknown extensions are
// treated as TXT so they still flow through the text path.
func MapExtToFormat(ext string) FileType {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "heic", "heif", "webp":
		return IMAGE
	default:
		return TXT
	}
}
