package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Write serializes the deployment to path. The extension picks the format:
// .json writes JSON, anything else writes TOML.
func Write(path string, deployment *GeneratedDeployment) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(deployment, "", "  ")
	} else {
		data, err = toml.Marshal(deployment)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize deployment: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write deployment file: %w", err)
	}
	return nil
}
