package transfer

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/prn-tf/tencos/internal/domain"
)

// initiateResult is the body of a successful initiate-multipart response.
type initiateResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

// parseInitiateResult decodes the initiate response and extracts the upload
// id. A well-formed response without an UploadId is a protocol violation.
func parseInitiateResult(body []byte) (string, error) {
	var result initiateResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode initiate response: %w", err)
	}
	if strings.TrimSpace(result.UploadID) == "" {
		return "", domain.ErrUploadIDMissing
	}
	return result.UploadID, nil
}

// completePart is one manifest entry.
type completePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// completeManifest is the body of the completion request.
type completeManifest struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []completePart `xml:"Part"`
}

// buildCompleteManifest renders the completion document from part records.
// Records must already be sorted and validated ascending from 1.
func buildCompleteManifest(parts []domain.PartRecord) ([]byte, error) {
	manifest := completeManifest{Parts: make([]completePart, len(parts))}
	for i, p := range parts {
		manifest.Parts[i] = completePart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	body, err := xml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode completion manifest: %w", err)
	}
	return body, nil
}
