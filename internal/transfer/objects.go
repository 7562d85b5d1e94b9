package transfer

import (
	"context"
	"net/http"
	"strings"

	"github.com/prn-tf/tencos/internal/domain"
	"github.com/prn-tf/tencos/internal/transport"
)

// Head fetches the object's user metadata. The returned keys are the
// metadata names without the provider prefix, lowercased by HTTP transit.
func (u *Uploader) Head(ctx context.Context, objectKey string) (map[string]string, error) {
	resp, err := u.exec.Do(ctx, transport.Request{
		Op:     "HeadObject",
		Method: http.MethodHead,
		Key:    objectKey,
	})
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]string)
	for name, values := range resp.Header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, domain.MetaHeaderPrefix) || len(values) == 0 {
			continue
		}
		metadata[strings.TrimPrefix(lower, domain.MetaHeaderPrefix)] = values[0]
	}
	return metadata, nil
}

// Delete removes the object. Deleting an absent key is whatever the service
// says it is; the executor surfaces non-2xx statuses unchanged.
func (u *Uploader) Delete(ctx context.Context, objectKey string) error {
	_, err := u.exec.Do(ctx, transport.Request{
		Op:     "DeleteObject",
		Method: http.MethodDelete,
		Key:    objectKey,
	})
	return err
}
