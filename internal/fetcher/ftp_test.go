package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "default port",
			url:      "ftp://files.example.com/inbox/invoice_001.pdf",
			wantHost: "files.example.com:21",
			wantPath: "/inbox/invoice_001.pdf",
		},
		{
			name:     "explicit port",
			url:      "ftp://files.example.com:2121/contract.pdf",
			wantHost: "files.example.com:2121",
			wantPath: "/contract.pdf",
		},
		{
			name:    "wrong scheme",
			url:     "https://example.com/doc.pdf",
			wantErr: true,
		},
		{
			name:    "missing path",
			url:     "ftp://example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcher_AnonymousDefault(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, "anonymous", f.opts.User)
	assert.Equal(t, "anonymous@", f.opts.Password)

	f = NewFTPFetcher(FTPOptions{User: "batch", Password: "secret"})
	assert.Equal(t, "batch", f.opts.User)
	assert.Equal(t, "secret", f.opts.Password)
}
