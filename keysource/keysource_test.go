package keysource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveDefaultsToEnv(t *testing.T) {
	t.Setenv(DefaultEnvVar, "aa11")

	key, err := Resolve(context.Background(), "", discardLogger())
	require.NoError(t, err)
	require.Equal(t, "aa11", key, "empty source must fall back to the default environment variable")
}

func TestResolveNamedEnvVar(t *testing.T) {
	t.Setenv("WALLET_KEY_ALT", "bb22")

	key, err := Resolve(context.Background(), "env://WALLET_KEY_ALT", discardLogger())
	require.NoError(t, err)
	require.Equal(t, "bb22", key)
}

func TestResolveEnvMissing(t *testing.T) {
	t.Setenv("WALLET_KEY_UNSET", "")

	_, err := Resolve(context.Background(), "env://WALLET_KEY_UNSET", discardLogger())
	require.ErrorIs(t, err, interfaces.ErrMissingEncryptionKey)
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.key")
	require.NoError(t, os.WriteFile(path, []byte("cc33\n"), 0600))

	key, err := Resolve(context.Background(), "file://"+path, discardLogger())
	require.NoError(t, err)
	require.Equal(t, "cc33", key, "trailing newline must be trimmed")
}

func TestResolveFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.key")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0600))

	_, err := Resolve(context.Background(), "file://"+path, discardLogger())
	require.ErrorIs(t, err, interfaces.ErrMissingEncryptionKey)
}

func TestResolveFileMissing(t *testing.T) {
	_, err := Resolve(context.Background(), "file:///nonexistent/custody.key", discardLogger())
	require.Error(t, err)
}

func TestResolveUnsupportedScheme(t *testing.T) {
	_, err := Resolve(context.Background(), "consul://host/key", discardLogger())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported custody key source scheme")
}

func TestResolveVault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/secret/data/recoveryd/custody", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": {"data": {"custody_key": "dd44"}, "metadata": {"version": 1}}}`)
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	source := fmt.Sprintf("vault://%s/secret/recoveryd/custody?tls=false", host)

	key, err := Resolve(context.Background(), source, discardLogger())
	require.NoError(t, err)
	require.Equal(t, "dd44", key)
}

func TestResolveVaultCustomField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": {"data": {"wrapping_key": "ee55"}, "metadata": {"version": 2}}}`)
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	source := fmt.Sprintf("vault://%s/secret/recoveryd/custody?tls=false&field=wrapping_key", host)

	key, err := Resolve(context.Background(), source, discardLogger())
	require.NoError(t, err)
	require.Equal(t, "ee55", key)
}

func TestResolveVaultMissingSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	source := fmt.Sprintf("vault://%s/secret/recoveryd/custody?tls=false", host)

	_, err := Resolve(context.Background(), source, discardLogger())
	require.ErrorIs(t, err, interfaces.ErrMissingEncryptionKey)
}

func TestResolveVaultMissingField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": {"data": {"unrelated": "ff66"}, "metadata": {"version": 1}}}`)
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	source := fmt.Sprintf("vault://%s/secret/recoveryd/custody?tls=false", host)

	_, err := Resolve(context.Background(), source, discardLogger())
	require.ErrorIs(t, err, interfaces.ErrMissingEncryptionKey)
}

func TestResolveVaultMalformedPath(t *testing.T) {
	_, err := Resolve(context.Background(), "vault://vault.example.com:8200/secretonly?tls=false", discardLogger())
	require.Error(t, err)
	require.Contains(t, err.Error(), "mount and secret path")
}

func TestSplitVaultPath(t *testing.T) {
	tests := []struct {
		raw        string
		mount      string
		secretPath string
		ok         bool
	}{
		{"/secret/recoveryd/custody", "secret", "recoveryd/custody", true},
		{"/kv/custody", "kv", "custody", true},
		{"/secret/", "", "", false},
		{"/secret", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		mount, secretPath, ok := splitVaultPath(tt.raw)
		require.Equal(t, tt.ok, ok, "path %q", tt.raw)
		require.Equal(t, tt.mount, mount, "path %q", tt.raw)
		require.Equal(t, tt.secretPath, secretPath, "path %q", tt.raw)
	}
}
