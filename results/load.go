package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
)

// ErrNoResults is returned when a location holds no parsable results.
var ErrNoResults = errors.New("no results found")

// LoadOptions configures Load.
type LoadOptions struct {
	// Label overrides the label of the loaded store when set.
	Label string
	S3    S3Options
	// S3Client replaces the client built from S3 when set.
	S3Client ObjectGetter
}

// Load reads a result set from location into a sealed store. Supported
// locations:
//
//   - s3://bucket/key, fetched and then parsed by its key's extension
//   - a criterion output directory (any tree holding estimates.json)
//   - a directory of *.json result files
//   - a .db or .sqlite file written by SaveSQLite
//   - Go benchmark text (.txt, .bench)
//   - a JSON document (.json, or snappy-framed .sz)
func Load(ctx context.Context, location string, opts LoadOptions) (*Store, error) {
	store, err := load(ctx, location, opts)
	if err != nil {
		return nil, err
	}

	if opts.Label != "" {
		store.mu.Lock()
		store.label = opts.Label
		store.mu.Unlock()
	}

	store.Seal()

	if store.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", location, ErrNoResults)
	}

	return store, nil
}

func load(ctx context.Context, location string, opts LoadOptions) (*Store, error) {
	if strings.HasPrefix(location, "s3://") {
		return loadS3(ctx, location, opts)
	}

	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", location, err)
	}

	if info.IsDir() {
		store := NewStore(opts.Label)

		if isCriterionDir(location) {
			if err := loadCriterion(location, store); err != nil {
				return nil, err
			}

			return store, nil
		}

		if err := loadJSONDir(location, store); err != nil {
			return nil, err
		}

		return store, nil
	}

	switch ext := strings.ToLower(filepath.Ext(location)); ext {
	case ".db", ".sqlite":
		return LoadSQLite(ctx, location)
	case ".txt", ".bench":
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", location, err)
		}
		defer f.Close()

		store := NewStore(opts.Label)
		if err := loadGoBench(f, location, store); err != nil {
			return nil, err
		}

		return store, nil
	default:
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", location, err)
		}

		return decodeBytes(data, location)
	}
}

func loadS3(ctx context.Context, location string, opts LoadOptions) (*Store, error) {
	client := opts.S3Client
	if client == nil {
		c, err := NewS3Client(ctx, opts.S3)
		if err != nil {
			return nil, err
		}

		client = c
	}

	data, key, err := fetchS3(ctx, client, location)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(key)) {
	case ".db", ".sqlite":
		tmp, err := os.CreateTemp("", "flowbench-*"+filepath.Ext(key))
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", location, err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()

			return nil, fmt.Errorf("stage %s: %w", location, err)
		}

		if err := tmp.Close(); err != nil {
			return nil, fmt.Errorf("stage %s: %w", location, err)
		}

		return LoadSQLite(ctx, tmp.Name())
	case ".txt", ".bench":
		store := NewStore(opts.Label)
		if err := loadGoBench(bytes.NewReader(data), location, store); err != nil {
			return nil, err
		}

		return store, nil
	default:
		return decodeBytes(data, key)
	}
}

// legacyResult is a flat {name, value, unit} record as written by older
// comparison scripts.
type legacyResult struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

var unitScale = map[string]time.Duration{
	"":   time.Nanosecond,
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
}

// decodeBytes parses a JSON document or a list of legacy results; name
// decides whether the bytes are snappy-framed.
func decodeBytes(data []byte, name string) (*Store, error) {
	var r io.Reader = bytes.NewReader(data)
	if compressed(name) {
		raw, err := io.ReadAll(snappy.NewReader(r))
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", name, err)
		}

		data = raw
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var legacy []legacyResult
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}

		store := NewStore("")
		for _, l := range legacy {
			scale, ok := unitScale[strings.ToLower(l.Unit)]
			if !ok {
				return nil, fmt.Errorf("decode %s: unknown unit %q for %s", name, l.Unit, l.Name)
			}

			if err := store.Record(Sample{
				Name:    l.Name,
				Elapsed: time.Duration(l.Value * float64(scale)),
			}); err != nil {
				return nil, err
			}
		}

		return store, nil
	}

	store, err := Decode(bytes.NewReader(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return store, nil
}

// loadJSONDir merges every *.json file in dir, in name order.
func loadJSONDir(dir string, store *Store) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}

	sort.Strings(matches)

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		part, err := decodeBytes(data, path)
		if err != nil {
			return err
		}

		for _, s := range part.All() {
			if err := store.Record(s); err != nil {
				return err
			}
		}
	}

	return nil
}
