package longformer

import (
	"sort"

	"github.com/ajroetker/longformer-gomlx"
)

// pretrainedConfigArchiveMap maps pretrained names to their config.json.
var pretrainedConfigArchiveMap = map[string]string{
	"longformer-base-4096":  "https://s3.amazonaws.com/models.huggingface.co/bert/allenai/longformer-base-4096/config.json",
	"longformer-large-4096": "https://s3.amazonaws.com/models.huggingface.co/bert/allenai/longformer-large-4096/config.json",
}

// pretrainedOrganization owns the hub repositories of the archived checkpoints.
const pretrainedOrganization = "allenai"

// PretrainedConfigURL returns the config.json URL of a pretrained Longformer.
// It reports false for names that are not pretrained variants.
func PretrainedConfigURL(name string) (string, bool) {
	url, ok := pretrainedConfigArchiveMap[name]
	return url, ok
}

// PretrainedModels returns the names of the pretrained Longformer variants, sorted.
func PretrainedModels() []string {
	names := make([]string, 0, len(pretrainedConfigArchiveMap))
	for name := range pretrainedConfigArchiveMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func registerPretrained() {
	for name, url := range pretrainedConfigArchiveMap {
		models.RegisterPretrained(models.PretrainedConfig{
			Name:      name,
			ModelType: ModelType,
			ConfigURL: url,
			RepoID:    pretrainedOrganization + "/" + name,
		})
	}
}
