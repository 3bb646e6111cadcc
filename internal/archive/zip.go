// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive expands zip bundles of dive-log exports into their
// member files, and bundles multi-unit exports back up.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Member is one file inside an archive, with directory components
// stripped from the name.
type Member struct {
	Name string
	Data []byte
}

// IsArchive reports whether path names a zip bundle by extension.
func IsArchive(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".zip"
}

// Expand reads a zip archive and returns its regular members in archive
// order. Directories and hidden metadata entries are skipped.
func Expand(data []byte) ([]Member, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	var members []Member
	for _, entry := range r.File {
		name := filepath.Base(entry.Name)
		if entry.FileInfo().IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("opening member %q: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading member %q: %w", entry.Name, err)
		}
		members = append(members, Member{Name: name, Data: content})
	}
	return members, nil
}

// Bundle writes members into a zip archive in the given order.
func Bundle(members []Member) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, m := range members {
		f, err := w.Create(m.Name)
		if err != nil {
			return nil, fmt.Errorf("adding member %q: %w", m.Name, err)
		}
		if _, err := f.Write(m.Data); err != nil {
			return nil, fmt.Errorf("writing member %q: %w", m.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}
