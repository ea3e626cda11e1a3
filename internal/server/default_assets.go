package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"edupanel/internal/blobstore"
	"edupanel/internal/catalog"
)

// ProvisionDefaultAssets writes bundled placeholder blobs that storage does
// not hold yet. Existing blobs are left alone so operators can replace them.
// Configured assets without bundled content are only checked and logged.
func (s *Server) ProvisionDefaultAssets(ctx context.Context) error {
	for _, key := range s.catalog.DefaultAssets() {
		exists, err := s.blobs.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("check default asset %s: %w", key, err)
		}
		if exists {
			continue
		}
		data, ok := catalog.DefaultAssetContent(key)
		if !ok {
			s.log().Warn("default asset missing from storage", "key", key)
			continue
		}
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data)); err != nil {
			if errors.Is(err, blobstore.ErrExists) {
				continue
			}
			return fmt.Errorf("provision default asset %s: %w", key, err)
		}
		s.log().Info("provisioned default asset", "key", key, "path", s.uploads.PublicPrefix+key)
	}

	for _, publicPath := range s.uploads.DefaultAssets {
		rel, ok := strings.CutPrefix(strings.TrimSpace(publicPath), s.uploads.PublicPrefix)
		if !ok {
			s.log().Warn("default asset outside upload prefix", "path", publicPath)
			continue
		}
		key, err := blobstore.CleanKey(rel)
		if err != nil {
			s.log().Warn("invalid default asset path", "path", publicPath, "error", err)
			continue
		}
		exists, err := s.blobs.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("check default asset %s: %w", key, err)
		}
		if !exists {
			s.log().Warn("default asset missing from storage", "key", key)
		}
	}
	return nil
}
