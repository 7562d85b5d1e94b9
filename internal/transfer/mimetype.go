package transfer

import (
	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// detectContentType sniffs the file's content type from its bytes. Detection
// trouble falls back to the generic binary type rather than failing the
// upload.
func detectContentType(localPath string) string {
	mtype, err := mimetype.DetectFile(localPath)
	if err != nil {
		return defaultContentType
	}
	return mtype.String()
}
