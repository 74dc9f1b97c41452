package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/ajroetker/longformer-gomlx/internal/envconfig"
)

// maxConfigSize bounds a downloaded config.json.
const maxConfigSize = 8 << 20

// ConfigFetcher downloads config.json files by URL and keeps a copy on disk.
type ConfigFetcher struct {
	// Client performs the requests.
	Client *http.Client

	// CacheDir holds downloaded configs. Empty disables caching.
	CacheDir string

	// Endpoint is the hub base URL used to build fallback URLs.
	Endpoint string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Offline serves configs from CacheDir only.
	Offline bool
}

// NewConfigFetcher returns a fetcher configured from the HF_* environment variables.
func NewConfigFetcher() *ConfigFetcher {
	return &ConfigFetcher{
		Client:   &http.Client{Timeout: 60 * time.Second},
		CacheDir: filepath.Join(envconfig.HubCache(), "configs"),
		Endpoint: envconfig.Endpoint(),
		Token:    envconfig.Token(),
		Offline:  envconfig.Offline(),
	}
}

// Fetch returns the configuration at url, from the cache when present.
func (f *ConfigFetcher) Fetch(ctx context.Context, url string) (*BaseConfig, error) {
	content, err := f.fetchContent(ctx, url)
	if err != nil {
		return nil, err
	}
	config, err := ParseConfigContent(content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config from %s", url)
	}
	return config, nil
}

// FetchPretrained resolves a registered pretrained name. The archived config URL
// is tried first, then the config.json of the hub repository.
func (f *ConfigFetcher) FetchPretrained(ctx context.Context, name string) (*BaseConfig, error) {
	p, ok := LookupPretrained(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPretrained, "%q (known: %v)", name, ListPretrained())
	}

	var urls []string
	if p.ConfigURL != "" {
		urls = append(urls, p.ConfigURL)
	}
	if p.RepoID != "" {
		urls = append(urls, f.HubConfigURL(p.RepoID))
	}

	var lastErr error
	for i, url := range urls {
		if i > 0 {
			klog.Warningf("Fetching %s failed (%v); trying %s", name, lastErr, url)
		}
		config, err := f.Fetch(ctx, url)
		if err == nil {
			return config, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.Errorf("pretrained configuration %q has no location", name)
	}
	return nil, lastErr
}

// HubConfigURL returns the download URL of config.json in a hub repository.
func (f *ConfigFetcher) HubConfigURL(repoID string) string {
	endpoint := f.Endpoint
	if endpoint == "" {
		endpoint = envconfig.DefaultEndpoint
	}
	return fmt.Sprintf("%s/%s/resolve/main/config.json", strings.TrimSuffix(endpoint, "/"), repoID)
}

func (f *ConfigFetcher) fetchContent(ctx context.Context, url string) ([]byte, error) {
	if f.CacheDir == "" {
		if f.Offline {
			return nil, errors.Wrap(ErrOffline, url)
		}
		return f.download(ctx, url)
	}

	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory %q", f.CacheDir)
	}
	cachePath := filepath.Join(f.CacheDir, cacheKey(url)+".json")

	lock := flock.New(cachePath + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, errors.Wrapf(err, "failed to lock %q", cachePath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			klog.Warningf("Failed to unlock %s: %v", cachePath, err)
		}
	}()

	if content, err := os.ReadFile(cachePath); err == nil {
		klog.V(1).Infof("Using cached config for %s at %s", url, cachePath)
		return content, nil
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to read cached config %q", cachePath)
	}

	if f.Offline {
		return nil, errors.Wrap(ErrOffline, url)
	}
	content, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}

	tmp := cachePath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %q", tmp)
	}
	if err := os.Rename(tmp, cachePath); err != nil {
		return nil, errors.Wrapf(err, "failed to move config into cache at %q", cachePath)
	}
	klog.V(1).Infof("Cached config for %s at %s", url, cachePath)
	return content, nil
}

func (f *ConfigFetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request for %s", url)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	klog.V(1).Infof("Downloading %s", url)
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("failed to download %s: %s", url, resp.Status)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", url)
	}
	if len(content) > maxConfigSize {
		return nil, errors.Errorf("config at %s exceeds %d bytes", url, maxConfigSize)
	}
	return content, nil
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// ResolveConfig loads a configuration by registered pretrained name, or from a
// local config.json file or a directory containing one.
func ResolveConfig(ctx context.Context, nameOrPath string) (*BaseConfig, error) {
	if _, ok := LookupPretrained(nameOrPath); ok {
		return NewConfigFetcher().FetchPretrained(ctx, nameOrPath)
	}

	info, err := os.Stat(nameOrPath)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownPretrained, "%q is neither a registered name (%v) nor a local path", nameOrPath, ListPretrained())
	}
	if info.IsDir() {
		return ParseConfigFile(filepath.Join(nameOrPath, "config.json"))
	}
	return ParseConfigFile(nameOrPath)
}
