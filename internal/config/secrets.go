package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "supportbot", "secrets.yaml")
}

// fileSecrets reads provider credentials from a 0600 YAML file kept outside
// the config file so that `config show` and shared config never carry them.
type fileSecrets struct {
	path string
}

func (f fileSecrets) Get(account string) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("secrets not available: %w", err)
	}
	var secrets map[string]string
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	val, ok := secrets[account]
	if !ok {
		return "", fmt.Errorf("secret %q not found", account)
	}
	return val, nil
}

// SetSecret stores a provider credential in the secrets file.
func SetSecret(account, value string) error {
	return setSecret(secretsFilePath(), account, value)
}

func setSecret(p, account, value string) error {
	secrets := make(map[string]string)
	if data, err := os.ReadFile(p); err == nil {
		_ = yaml.Unmarshal(data, &secrets)
	}
	secrets[account] = value

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := yaml.Marshal(secrets)
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}
