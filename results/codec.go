package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
)

// Document is the JSON form of a store.
type Document struct {
	RunID   string   `json:"run_id"`
	Label   string   `json:"label,omitempty"`
	Samples []Sample `json:"samples"`
}

// Encode writes store as an indented JSON document.
func Encode(w io.Writer, store *Store) error {
	doc := Document{
		RunID:   store.RunID(),
		Label:   store.Label(),
		Samples: store.All(),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	return nil
}

// Decode reads a JSON document into a sealed store.
func Decode(r io.Reader) (*Store, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}

	return fromDocument(doc)
}

func fromDocument(doc Document) (*Store, error) {
	store := newStore(doc.RunID, doc.Label)

	for _, sample := range doc.Samples {
		if err := store.Record(sample); err != nil {
			return nil, err
		}
	}

	store.Seal()

	return store, nil
}

// compressed reports whether path uses the snappy framing format.
func compressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".sz")
}

// SaveFile writes store to path as JSON, snappy-framed when path ends in
// .sz.
func SaveFile(path string, store *Store) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	var w interface {
		io.Writer
		Flush() error
	}

	if compressed(path) {
		w = snappy.NewBufferedWriter(f)
	} else {
		w = bufio.NewWriter(f)
	}

	if err := Encode(w, store); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return f.Close()
}

// LoadFile reads a store written by SaveFile.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if compressed(path) {
		r = snappy.NewReader(r)
	}

	store, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return store, nil
}
