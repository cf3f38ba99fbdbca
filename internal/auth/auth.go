// Package auth obtains the API key sent to the remote store. Several providers can be
// chained; the first one that yields a key wins.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// EnvVar is the environment variable read by EnvProvider by default.
const EnvVar = "OPSDASH_API_KEY"

// ErrNoKey indicates a provider has no key to offer.
var ErrNoKey = errors.New("no API key")

// KeyProvider yields an API key.
type KeyProvider interface {
	Key() (string, error)
}

// EnvProvider reads the key from an environment variable (EnvVar when Var is empty).
type EnvProvider struct {
	Var string
}

// Key implements KeyProvider.
func (e EnvProvider) Key() (string, error) {
	name := e.Var
	if name == "" {
		name = EnvVar
	}
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" {
		return "", fmt.Errorf("%w: %s not set or empty", ErrNoKey, name)
	}
	return key, nil
}

// FileProvider reads the key from the first line of a file.
type FileProvider struct {
	Path string
}

// Key implements KeyProvider.
func (f FileProvider) Key() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoKey, f.Path)
		}
		return "", fmt.Errorf("read key file: %w", err)
	}
	key, _, _ := strings.Cut(string(data), "\n")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoKey, f.Path)
	}
	return key, nil
}

// CommandProvider obtains the key by running a command, e.g. a password manager
// ("pass show opsdash/api_key"). The command's trimmed stdout is the key.
type CommandProvider struct {
	Command string
}

// Key implements KeyProvider.
func (c CommandProvider) Key() (string, error) {
	fields := strings.Fields(c.Command)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: no key command configured", ErrNoKey)
	}
	out, err := exec.Command(fields[0], fields[1:]...).Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not found in PATH", ErrNoKey, fields[0])
		}
		return "", fmt.Errorf("key command failed: %w", err)
	}
	key := strings.TrimSpace(string(out))
	if key == "" {
		return "", fmt.Errorf("%w: key command returned nothing", ErrNoKey)
	}
	return key, nil
}

// GetKey tries each provider in order and returns the first key found. If every provider
// fails, the error lists each failure and how to supply a key.
func GetKey(providers ...KeyProvider) (string, error) {
	var errs []error
	for _, p := range providers {
		key, err := p.Key()
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf(
		"failed to obtain API key: %w\n"+
			"Please either:\n"+
			"  1. Set the %s environment variable, or\n"+
			"  2. Write the key to the api_key file in the config directory",
		errors.Join(errs...), EnvVar,
	)
}
