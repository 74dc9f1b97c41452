package longformer_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/longformer-gomlx"
	"github.com/ajroetker/longformer-gomlx/architectures/longformer"
)

func TestPretrainedModels(t *testing.T) {
	names := longformer.PretrainedModels()
	assert.Equal(t, []string{"longformer-base-4096", "longformer-large-4096"}, names)

	seen := make(map[string]bool)
	for _, name := range names {
		raw, ok := longformer.PretrainedConfigURL(name)
		require.True(t, ok, name)
		assert.False(t, seen[raw], "URLs must be distinct")
		seen[raw] = true

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "https", u.Scheme)
		assert.Contains(t, u.Path, name)
		assert.Contains(t, u.Path, "config.json")
	}
}

func TestPretrainedConfigURL_Unknown(t *testing.T) {
	_, ok := longformer.PretrainedConfigURL("longformer-huge-16384")
	assert.False(t, ok)
}

func TestPretrainedRegistered(t *testing.T) {
	for _, name := range longformer.PretrainedModels() {
		p, ok := models.LookupPretrained(name)
		require.True(t, ok, name)
		assert.Equal(t, longformer.ModelType, p.ModelType)
		assert.Equal(t, "allenai/"+name, p.RepoID)

		want, _ := longformer.PretrainedConfigURL(name)
		assert.Equal(t, want, p.ConfigURL)
	}
}
