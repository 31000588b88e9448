package models

// FormatMimeType returns the download MIME type for a lowercase book format
// extension.
func FormatMimeType(format string) string {
	switch format {
	case "fb2":
		return "application/fb2+xml"
	case "epub":
		return "application/epub+zip"
	case "mobi":
		return "application/x-mobipocket-ebook"
	case "pdf":
		return "application/pdf"
	case "djvu":
		return "image/vnd.djvu"
	case "doc", "docx":
		return "application/msword"
	case "txt":
		return "text/plain"
	case "rtf":
		return "text/rtf"
	default:
		return "application/octet-stream"
	}
}

// ZippedMimeType returns the MIME type used for the on-the-fly zipped
// download of a format. FB2 keeps its historical fb2+zip type.
func ZippedMimeType(format string) string {
	if format == "fb2" {
		return "application/fb2+zip"
	}
	return FormatMimeType(format) + "+zip"
}

// IsNoZipFormat reports whether a format is already a ZIP container and must
// never be re-wrapped for download.
func IsNoZipFormat(format string) bool {
	switch format {
	case "epub", "mobi", "zip", "docx":
		return true
	default:
		return false
	}
}
