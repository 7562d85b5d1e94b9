package transfer

import (
	"github.com/prn-tf/tencos/internal/domain"
)

// PartSpan is the byte range one part covers.
type PartSpan struct {
	// Number is the 1-based part number.
	Number int

	// Offset is the first byte of the range.
	Offset int64

	// Size is the range length; only the final span may be shorter than the
	// configured part size.
	Size int64
}

// PlanParts splits fileSize bytes into contiguous spans of at most partSize
// bytes. Spans cover [0, fileSize) exactly, numbered from 1. The plan fails
// rather than produce more parts than the service's counter allows.
func PlanParts(fileSize, partSize int64) ([]PartSpan, error) {
	if partSize <= 0 || fileSize <= 0 {
		return nil, domain.ErrNoParts
	}

	count := (fileSize + partSize - 1) / partSize
	if count > domain.MaxPartNumber {
		return nil, domain.ErrPartNumberOverflow
	}

	spans := make([]PartSpan, 0, count)
	for n := int64(1); n <= count; n++ {
		offset := (n - 1) * partSize
		size := partSize
		if offset+size > fileSize {
			size = fileSize - offset
		}
		spans = append(spans, PartSpan{
			Number: int(n),
			Offset: offset,
			Size:   size,
		})
	}
	return spans, nil
}
