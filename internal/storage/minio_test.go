package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/config"
)

func TestNewMinioClientValidatesConfig(t *testing.T) {
	base := config.StorageConfig{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk", Bucket: "sales"}

	_, err := NewMinioClient(base)
	require.NoError(t, err)

	missing := base
	missing.Endpoint = ""
	_, err = NewMinioClient(missing)
	require.ErrorContains(t, err, "endpoint")

	missing = base
	missing.SecretKey = ""
	_, err = NewMinioClient(missing)
	require.ErrorContains(t, err, "credentials")

	missing = base
	missing.Bucket = ""
	_, err = NewMinioClient(missing)
	require.ErrorContains(t, err, "bucket")
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		useSSL bool
		host   string
		secure bool
	}{
		{"https://s3.example.com/", false, "s3.example.com", true},
		{"http://localhost:9000", true, "localhost:9000", false},
		{"localhost:9000", true, "localhost:9000", true},
		{"//minio:9000", false, "minio:9000", false},
	}
	for _, tc := range cases {
		host, secure := splitEndpoint(tc.in, tc.useSSL)
		require.Equal(t, tc.host, host, tc.in)
		require.Equal(t, tc.secure, secure, tc.in)
	}
}
