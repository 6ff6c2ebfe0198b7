package constants

import "strings"

// FormatFamily routes a file to one of the three extraction strategies.
type FormatFamily string

// Stable values (store these exact strings in DB).
const (
	IMAGE    FormatFamily = "IMAGE"
	PDF      FormatFamily = "PDF"
	DOCUMENT FormatFamily = "DOCUMENT"
)

var extToFamily = map[string]FormatFamily{
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"png":  IMAGE,
	"gif":  IMAGE,
	"bmp":  IMAGE,
	"tiff": IMAGE,
	"tif":  IMAGE,
	"webp": IMAGE,
	"heic": IMAGE,
	"heif": IMAGE,

	"pdf": PDF,

	// legacy BIFF .xls is not accepted: the xlsx reader only handles the
	// zip-based format
	"csv":  DOCUMENT,
	"tsv":  DOCUMENT,
	"xlsx": DOCUMENT,
	"txt":  DOCUMENT,
	"log":  DOCUMENT,
	"md":   DOCUMENT,
	"json": DOCUMENT,
	"xml":  DOCUMENT,
	"docx": DOCUMENT,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the strategy family for an extension,
// or "" when the extension is not supported.
func MapExtToFormat(ext string) FormatFamily {
	return extToFamily[NormalizeExt(ext)]
}

// IsHEICExt reports whether the extension needs the HEIC decoder.
func IsHEICExt(ext string) bool {
	e := NormalizeExt(ext)
	return e == "heic" || e == "heif"
}
