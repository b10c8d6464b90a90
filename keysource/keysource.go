// Package keysource resolves the custody encryption key from a configurable
// source. Deployments range from a plain environment variable in development
// to a Vault KV entry in production; the source is selected by URI scheme the
// same way archive backends are.
package keysource

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

const (
	// DefaultEnvVar is the environment variable consulted when no source is
	// configured.
	DefaultEnvVar = "CUSTODY_ENCRYPTION_KEY"

	// defaultVaultField is the secret field read from Vault KV entries.
	defaultVaultField = "custody_key"
)

// Resolve fetches the custody encryption key hex string from a source URI.
//
// Supported sources:
//   - "" or env://NAME: environment variable, default CUSTODY_ENCRYPTION_KEY
//   - file:///etc/recoveryd/custody.key: key file, surrounding whitespace trimmed
//   - vault://vault.example.com:8200/secret/recoveryd/custody?field=custody_key:
//     HashiCorp Vault KV v2; the client authenticates via VAULT_TOKEN
//
// Resolve returns the raw hex string. Length and encoding are validated by
// custody.NewEngine, which owns the key format.
func Resolve(ctx context.Context, source string, log *slog.Logger) (string, error) {
	if source == "" {
		return resolveEnv(DefaultEnvVar)
	}

	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid custody key source %q: %w", source, err)
	}

	switch u.Scheme {
	case "env":
		name := u.Host
		if name == "" {
			name = DefaultEnvVar
		}
		return resolveEnv(name)
	case "file":
		path := u.Path
		if u.Host != "" {
			path = u.Host + "/" + strings.TrimPrefix(path, "/")
		}
		return resolveFile(path)
	case "vault":
		return resolveVault(ctx, u, log)
	default:
		return "", fmt.Errorf("unsupported custody key source scheme: %s", u.Scheme)
	}
}

func resolveEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("%w: environment variable %s is empty", interfaces.ErrMissingEncryptionKey, name)
	}

	return value, nil
}

func resolveFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read custody key file: %w", err)
	}

	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", fmt.Errorf("%w: key file %s is empty", interfaces.ErrMissingEncryptionKey, path)
	}

	return value, nil
}

// resolveVault reads the key from a Vault KV v2 entry. The first path segment
// is the mount, the rest is the secret path; the field defaults to
// custody_key and can be overridden with ?field=.
func resolveVault(ctx context.Context, u *url.URL, log *slog.Logger) (string, error) {
	proto := "https"
	if u.Query().Get("tls") == "false" {
		proto = "http"
	}

	config := api.DefaultConfig()
	config.Address = fmt.Sprintf("%s://%s", proto, u.Host)

	client, err := api.NewClient(config)
	if err != nil {
		return "", fmt.Errorf("failed to create Vault client: %w", err)
	}

	mount, secretPath, ok := splitVaultPath(u.Path)
	if !ok {
		return "", fmt.Errorf("vault source must include mount and secret path, got %q", u.Path)
	}

	field := u.Query().Get("field")
	if field == "" {
		field = defaultVaultField
	}

	// KV v2 interposes /data/ between mount and secret path.
	readPath := fmt.Sprintf("%s/data/%s", mount, secretPath)

	secret, err := client.Logical().ReadWithContext(ctx, readPath)
	if err != nil {
		return "", fmt.Errorf("failed to read custody key from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: no secret at vault path %s", interfaces.ErrMissingEncryptionKey, readPath)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected KV response shape at vault path %s", readPath)
	}

	value, ok := data[field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: field %q missing at vault path %s", interfaces.ErrMissingEncryptionKey, field, readPath)
	}

	log.Info("Loaded custody key from Vault",
		slog.String("path", readPath),
		slog.String("field", field))

	return value, nil
}

func splitVaultPath(raw string) (string, string, bool) {
	trimmed := strings.Trim(raw, "/")
	mount, rest, ok := strings.Cut(trimmed, "/")
	if !ok || mount == "" || rest == "" {
		return "", "", false
	}

	return mount, rest, true
}
