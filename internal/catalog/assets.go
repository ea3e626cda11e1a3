package catalog

import (
	"embed"
	"path"
)

//go:embed assets
var bundledAssets embed.FS

// DefaultAssetContent returns the bundled bytes for a placeholder blob key.
// It reports false for keys that ship no content.
func DefaultAssetContent(key string) ([]byte, bool) {
	data, err := bundledAssets.ReadFile(path.Join("assets", key))
	if err != nil {
		return nil, false
	}
	return data, true
}
