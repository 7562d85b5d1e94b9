package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Validate(t *testing.T) {
	require.NoError(t, Credentials{SecretID: "id", SecretKey: "key"}.Validate())
	require.ErrorIs(t, Credentials{SecretKey: "key"}.Validate(), ErrMissingSecretID)
	require.ErrorIs(t, Credentials{SecretID: "id"}.Validate(), ErrMissingSecretKey)
}

func TestEndpoint_Host(t *testing.T) {
	e, err := NewEndpoint("ap-guangzhou", "examplebucket-1250000000")
	require.NoError(t, err)

	assert.Equal(t, "examplebucket-1250000000.cos.ap-guangzhou.myqcloud.com", e.Host())
	assert.Equal(t, "https://examplebucket-1250000000.cos.ap-guangzhou.myqcloud.com", e.BaseURL())
}

func TestEndpoint_ObjectURL(t *testing.T) {
	e, err := NewEndpoint("ap-guangzhou", "bkt-1250000000")
	require.NoError(t, err)

	assert.Equal(t, "https://bkt-1250000000.cos.ap-guangzhou.myqcloud.com/docs/a.txt", e.ObjectURL("docs/a.txt"))
	assert.Equal(t, e.ObjectURL("docs/a.txt"), e.ObjectURL("/docs/a.txt"), "a leading slash on the key is not doubled")
	assert.Equal(t, "/docs/a.txt", e.ObjectPath("docs/a.txt"))
}

func TestNewEndpoint_Validation(t *testing.T) {
	_, err := NewEndpoint("", "bkt")
	require.ErrorIs(t, err, ErrMissingRegion)

	_, err = NewEndpoint("ap-guangzhou", "")
	require.ErrorIs(t, err, ErrMissingBucket)
}
