package firestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const fileVersion = 1

// legacyLayouts covers the timestamps written by older desktop builds,
// which carry no zone and up to seven fractional digits.
var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

type fileDoc struct {
	Version int                  `json:"version"`
	Fired   map[string]time.Time `json:"fired"`
}

// FileBackend stores fires as a JSON document on an afero filesystem.
type FileBackend struct {
	fs   afero.Fs
	path string
}

// NewFileBackend returns a backend writing path on fs. A nil fs means the
// OS filesystem.
func NewFileBackend(fs afero.Fs, path string) *FileBackend {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileBackend{fs: fs, path: path}
}

// Path returns the document location.
func (b *FileBackend) Path() string { return b.path }

// Load reads the document. A missing file is an empty state; anything
// that does not parse is an error.
func (b *FileBackend) Load(ctx context.Context) (map[Key]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(b.fs, b.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[Key]time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fire state %s: %w", b.path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse fire state %s: %w", b.path, err)
	}

	if _, ok := raw["version"]; ok {
		return decodeVersioned(data)
	}
	return decodeLegacy(raw), nil
}

func decodeVersioned(data []byte) (map[Key]time.Time, error) {
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fire state: %w", err)
	}
	if doc.Version > fileVersion {
		return nil, fmt.Errorf("fire state version %d is newer than supported %d", doc.Version, fileVersion)
	}

	out := make(map[Key]time.Time, len(doc.Fired))
	for s, at := range doc.Fired {
		k, err := ParseKey(s)
		if err != nil {
			continue
		}
		out[k] = at
	}
	return out, nil
}

// decodeLegacy reads the flat {"2006-01-02:Fajr": timestamp} form.
// Entries that do not parse are ignored.
func decodeLegacy(raw map[string]json.RawMessage) map[Key]time.Time {
	out := make(map[Key]time.Time, len(raw))
	for s, v := range raw {
		k, err := ParseKey(s)
		if err != nil {
			continue
		}
		var ts string
		if err := json.Unmarshal(v, &ts); err != nil {
			continue
		}
		for _, layout := range legacyLayouts {
			if at, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
				out[k] = at
				break
			}
		}
	}
	return out
}

// Save writes the document to a temp file next to the target and renames
// it into place.
func (b *FileBackend) Save(ctx context.Context, fired map[Key]time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := fileDoc{Version: fileVersion, Fired: make(map[string]time.Time, len(fired))}
	for k, at := range fired {
		doc.Fired[k.String()] = at
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fire state: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fire state directory: %w", err)
	}

	tmp, err := afero.TempFile(b.fs, dir, ".fired-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp fire state: %w", err)
	}
	tmpName := tmp.Name()
	defer b.fs.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write fire state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync fire state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close fire state: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.fs.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace fire state: %w", err)
	}
	return nil
}
