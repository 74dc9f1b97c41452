// Package envconfig reads the Hugging Face environment variables the loader honors.
package envconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultEndpoint is the hub used when HF_ENDPOINT is unset.
const DefaultEndpoint = "https://huggingface.co"

// Var returns an environment variable stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Bool returns a function reading a boolean variable. Unparseable non-empty
// values count as true.
func Bool(key string) func() bool {
	return func() bool {
		s := Var(key)
		if s == "" {
			return false
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return true
		}
		return b
	}
}

// Endpoint returns the hub base URL without a trailing slash. Configurable via HF_ENDPOINT.
func Endpoint() string {
	if s := Var("HF_ENDPOINT"); s != "" {
		return strings.TrimSuffix(s, "/")
	}
	return DefaultEndpoint
}

// Token returns the hub access token. Configurable via HF_TOKEN.
func Token() string {
	return Var("HF_TOKEN")
}

// HubCache returns the hub cache root: HF_HUB_CACHE, then HF_HOME/hub, then
// the XDG cache directory.
func HubCache() string {
	if s := Var("HF_HUB_CACHE"); s != "" {
		return s
	}
	if s := Var("HF_HOME"); s != "" {
		return filepath.Join(s, "hub")
	}
	if s := Var("XDG_CACHE_HOME"); s != "" {
		return filepath.Join(s, "huggingface", "hub")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "huggingface", "hub")
	}
	return filepath.Join(os.TempDir(), "huggingface", "hub")
}

// Offline disables network access when set. Configurable via HF_HUB_OFFLINE.
var Offline = Bool("HF_HUB_OFFLINE")
