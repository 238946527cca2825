package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"marketwatch/internal/provider"
)

var (
	// ErrNotFound is returned by Load when no artifact exists.
	ErrNotFound = errors.New("artifact not found")
	// ErrNotPersisted is returned by Save for responses that were not successful.
	ErrNotPersisted = errors.New("only successful responses are persisted")
)

// JSONFiles persists successful provider bodies as one pretty-printed JSON
// file per instrument and endpoint.
type JSONFiles struct {
	dir string
}

// NewJSONFiles stores artifacts under dir; an empty dir means the working directory.
func NewJSONFiles(dir string) *JSONFiles {
	if dir == "" {
		dir = "."
	}
	return &JSONFiles{dir: dir}
}

// Dir is the directory artifacts are written to.
func (f *JSONFiles) Dir() string { return f.dir }

// FileName is "{symbol_lowercase}_{endpoint}.json", e.g. btc_exchange_rate.json.
func FileName(symbol string, kind provider.EndpointKind, params provider.Params) string {
	return strings.ToLower(strings.TrimSpace(symbol)) + "_" + kind.FileSuffix(params) + ".json"
}

// Path is the full path of the artifact for symbol and endpoint.
func (f *JSONFiles) Path(symbol string, kind provider.EndpointKind, params provider.Params) string {
	return filepath.Join(f.dir, FileName(symbol, kind, params))
}

// Save writes the response body with two-space indentation, keeping key
// order and non-ASCII text as received. The file is replaced atomically.
func (f *JSONFiles) Save(res provider.Response) (string, error) {
	if res.Outcome != provider.Success {
		return "", fmt.Errorf("%w: %s %s was %s", ErrNotPersisted, res.Instrument, res.Kind, res.Outcome)
	}
	if len(res.Raw) == 0 {
		return "", fmt.Errorf("%w: %s %s has no body", ErrNotPersisted, res.Instrument, res.Kind)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, bytes.TrimSpace(res.Raw), "", "  "); err != nil {
		return "", fmt.Errorf("indent %s %s: %w", res.Instrument, res.Kind, err)
	}
	pretty.WriteByte('\n')

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := f.Path(res.Instrument.Base, res.Kind, res.Params)
	tmp, err := os.CreateTemp(f.dir, ".artifact-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pretty.Bytes()); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename into %s: %w", path, err)
	}
	return path, nil
}

// Load reads a previously saved artifact.
func (f *JSONFiles) Load(symbol string, kind provider.EndpointKind, params provider.Params) ([]byte, error) {
	path := f.Path(symbol, kind, params)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
