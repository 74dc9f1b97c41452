package envconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpoint(t *testing.T) {
	t.Setenv("HF_ENDPOINT", "")
	assert.Equal(t, DefaultEndpoint, Endpoint())

	t.Setenv("HF_ENDPOINT", " \"https://mirror.example.com/\" ")
	assert.Equal(t, "https://mirror.example.com", Endpoint())
}

func TestHubCache(t *testing.T) {
	t.Setenv("HF_HUB_CACHE", "")
	t.Setenv("HF_HOME", "")
	t.Setenv("XDG_CACHE_HOME", "/var/cache")
	assert.Equal(t, filepath.Join("/var/cache", "huggingface", "hub"), HubCache())

	t.Setenv("HF_HOME", "/data/hf")
	assert.Equal(t, filepath.Join("/data/hf", "hub"), HubCache())

	t.Setenv("HF_HUB_CACHE", "/scratch/hub")
	assert.Equal(t, "/scratch/hub", HubCache())
}

func TestOffline(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"0":     false,
		"false": false,
		"1":     true,
		"true":  true,
		"yes":   true,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("HF_HUB_OFFLINE", value)
			assert.Equal(t, want, Offline())
		})
	}
}

func TestToken(t *testing.T) {
	t.Setenv("HF_TOKEN", "'hf_abc'")
	assert.Equal(t, "hf_abc", Token())
}
