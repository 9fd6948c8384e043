// Package archive assembles in-memory zip archives for export downloads.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

type entry struct {
	name string
	data []byte
}

// Builder collects named entries and writes them as a zip in insertion
// order. Repeated names are made unique with a -2, -3, ... suffix placed
// before the extension.
type Builder struct {
	entries  []entry
	seen     map[string]int
	modified time.Time
}

// NewBuilder returns an empty builder. Entries are stamped with modified.
func NewBuilder(modified time.Time) *Builder {
	return &Builder{seen: make(map[string]int), modified: modified}
}

// AddText adds a text entry and returns the name it was stored under.
func (b *Builder) AddText(name, text string) string {
	return b.AddFile(name, []byte(text))
}

// AddFile adds a binary entry and returns the name it was stored under.
func (b *Builder) AddFile(name string, data []byte) string {
	name = b.unique(name)
	b.entries = append(b.entries, entry{name: name, data: data})
	return name
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Names returns entry names in insertion order.
func (b *Builder) Names() []string {
	names := make([]string, len(b.entries))
	for i, e := range b.entries {
		names[i] = e.name
	}
	return names
}

func (b *Builder) unique(name string) string {
	n := b.seen[name]
	b.seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := n + 1; ; i++ {
		candidate := stem + "-" + strconv.Itoa(i) + ext
		if _, taken := b.seen[candidate]; !taken {
			b.seen[candidate] = 1
			return candidate
		}
	}
}

// Bytes writes the archive.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range b.entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: b.modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}
