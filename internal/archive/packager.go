package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ErrNoFiles means every candidate file was blank, so there is nothing
// to package.
var ErrNoFiles = errors.New("no packable files")

const defaultSiteName = "website"

// archiveEpoch is the fixed timestamp stamped on every entry. Zip
// cannot represent anything before 1980, and a moving clock would make
// byte-identical inputs produce different archives.
var archiveEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// WriteArchive zips the site deterministically onto w: entries sorted
// by path, fixed modification time, deflate throughout. Files containing
// only whitespace are skipped rather than shipped as empty husks.
func WriteArchive(w io.Writer, files map[string]string) error {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	zw := zip.NewWriter(w)

	entries := 0
	for _, p := range paths {
		content := files[p]
		if strings.TrimSpace(content) == "" {
			continue
		}

		ew, err := zw.CreateHeader(&zip.FileHeader{
			Name:     p,
			Method:   zip.Deflate,
			Modified: archiveEpoch,
		})
		if err != nil {
			return fmt.Errorf("archive entry %s: %w", p, err)
		}
		if _, err := ew.Write([]byte(content)); err != nil {
			return fmt.Errorf("archive write %s: %w", p, err)
		}
		entries++
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive close: %w", err)
	}
	if entries == 0 {
		return ErrNoFiles
	}
	return nil
}

// Package is WriteArchive into memory, for callers that cache or hash
// the result.
func Package(files map[string]string) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := WriteArchive(buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Name derives the download filename from the site's own manifest plus
// the version, e.g. "my-portfolio-v3.zip".
func Name(files map[string]string, version int) string {
	return fmt.Sprintf("%s-v%d.zip", siteName(files), version)
}

// siteName reads "name" out of package.json when one exists and is
// parseable; anything else falls back to a generic name. Sites are not
// obligated to carry a manifest at all.
func siteName(files map[string]string) string {
	raw, ok := files["package.json"]
	if !ok {
		return defaultSiteName
	}

	var manifest struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &manifest); err != nil {
		return defaultSiteName
	}

	name := manifest.Name
	// scoped names like @acme/site keep only the final segment
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	name = slugify(name)
	if name == "" {
		return defaultSiteName
	}
	return name
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
