package company

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// ErrInvalidName is returned for a local file name that leaves its directory.
var ErrInvalidName = errors.New("invalid file name")

// ReadLocalJSON reads name from dir, typically the executable's directory.
// Comments and trailing commas are accepted and stripped.
func ReadLocalJSON(dir, name string) (json.RawMessage, error) {
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidName, name)
	}

	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	stripped := jsonc.ToJSON(data)

	var probe any
	if err := json.Unmarshal(stripped, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return json.RawMessage(stripped), nil
}
