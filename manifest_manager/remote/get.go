// Package remote fetches deployment manifests from a remote repository so
// manifests can live next to the infrastructure code that owns them.
package remote

import (
	"context"
	"fmt"
	"time"

	getter "github.com/hashicorp/go-getter"
)

// ManifestGitDownload downloads a manifest directory from a git source into
// dst. src uses go-getter syntax, e.g.
// "github.com/xla-labs/deployments//waterfalls".
func ManifestGitDownload(src, dst string) error {
	deadline := time.Now().Add(120 * time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	opts := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeDir,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
		},
		Getters: map[string]getter.Getter{
			"git": &getter.GitGetter{},
		},
	}

	if err := opts.Get(); err != nil {
		return fmt.Errorf("failed to download manifests from %s: %w", src, err)
	}
	return nil
}
