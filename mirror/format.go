package mirror

import (
	"mime"
	"regexp"
	"strings"
)

// Strategy is how a file's content is obtained.
type Strategy int

const (
	// Direct downloads the stored bytes (alt=media).
	Direct Strategy = iota
	// Export converts a Google-native document server-side.
	Export
	// LinkOnly writes a link file; the type cannot be downloaded or exported.
	LinkOnly
)

func (s Strategy) String() string {
	switch s {
	case Direct:
		return "direct"
	case Export:
		return "export"
	case LinkOnly:
		return "link"
	default:
		return "unknown"
	}
}

// Format is the download plan for one mimeType.
type Format struct {
	Strategy Strategy
	// ExportMimeType is set for Export.
	ExportMimeType string
	// Extension is the local extension, with the leading dot.
	Extension string
	// Aliases are other extensions an existing name may already carry.
	Aliases []string
	// NativeExtension names the link file written when an export is refused.
	NativeExtension string
}

// BinaryExtension is used when nothing better can be derived.
const BinaryExtension = ".bin"

const googleApps = "application/vnd.google-apps."

var exportFormats = map[string]Format{
	googleApps + "document": {
		Strategy:        Export,
		ExportMimeType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension:       ".docx",
		NativeExtension: ".gdoc",
	},
	googleApps + "spreadsheet": {
		Strategy:        Export,
		ExportMimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension:       ".xlsx",
		NativeExtension: ".gsheet",
	},
	googleApps + "presentation": {
		Strategy:        Export,
		ExportMimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension:       ".pptx",
		NativeExtension: ".gslides",
	},
	googleApps + "drawing": {
		Strategy:        Export,
		ExportMimeType:  "image/png",
		Extension:       ".png",
		NativeExtension: ".gdraw",
	},
	googleApps + "script": {
		Strategy:        Export,
		ExportMimeType:  "application/vnd.google-apps.script+json",
		Extension:       ".json",
		NativeExtension: ".gscript",
	},
}

var linkExtensions = map[string]string{
	googleApps + "form":        ".gform",
	googleApps + "site":        ".gsite",
	googleApps + "map":         ".gmap",
	googleApps + "jam":         ".gjam",
	googleApps + "fusiontable": ".gtable",
	googleApps + "shortcut":    ".glink",
}

// mimeToExt covers types whose subtype token is a poor extension.
var mimeToExt = map[string]string{
	"application/gzip":              ".gz",
	"application/javascript":        ".js",
	"application/json":              ".json",
	"application/msword":            ".doc",
	"application/octet-stream":      BinaryExtension,
	"application/pdf":               ".pdf",
	"application/postscript":        ".ps",
	"application/rtf":               ".rtf",
	"application/vnd.ms-excel":      ".xls",
	"application/vnd.ms-powerpoint": ".ppt",
	"application/vnd.oasis.opendocument.presentation":                           ".odp",
	"application/vnd.oasis.opendocument.spreadsheet":                            ".ods",
	"application/vnd.oasis.opendocument.text":                                   ".odt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/x-7z-compressed":  ".7z",
	"application/x-rar-compressed": ".rar",
	"application/x-tar":            ".tar",
	"application/zip":              ".zip",
	"audio/mpeg":                   ".mp3",
	"audio/mp4":                    ".m4a",
	"image/jpeg":                   ".jpg",
	"image/svg+xml":                ".svg",
	"image/tiff":                   ".tiff",
	"text/csv":                     ".csv",
	"text/javascript":              ".js",
	"text/markdown":                ".md",
	"text/plain":                   ".txt",
	"text/tab-separated-values":    ".tsv",
	"video/quicktime":              ".mov",
	"video/x-msvideo":              ".avi",
}

var subtypeExt = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// Resolve returns the download plan for mimeType. It never touches the network.
func Resolve(mimeType string) Format {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if f, ok := exportFormats[mt]; ok {
		return f
	}
	if strings.HasPrefix(mt, googleApps) {
		ext, ok := linkExtensions[mt]
		if !ok {
			ext = ".glink"
		}
		return Format{Strategy: LinkOnly, Extension: ext, NativeExtension: ext}
	}
	ext := directExtension(mt)
	return Format{
		Strategy:  Direct,
		Extension: ext,
		Aliases:   aliases(mt, ext),
	}
}

// IsNative reports whether mimeType is a Google-native type.
func IsNative(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), googleApps)
}

func directExtension(mt string) string {
	if ext, ok := mimeToExt[mt]; ok {
		return ext
	}
	i := strings.LastIndexByte(mt, '/')
	if i < 0 {
		return BinaryExtension
	}
	sub := strings.TrimPrefix(mt[i+1:], "x-")
	if j := strings.IndexByte(sub, '+'); j >= 0 {
		sub = sub[:j]
	}
	if !subtypeExt.MatchString(sub) {
		return BinaryExtension
	}
	return "." + sub
}

func aliases(mt, ext string) []string {
	exts, _ := mime.ExtensionsByType(mt)
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		if !strings.EqualFold(e, ext) {
			out = append(out, e)
		}
	}
	return out
}
