// Package report renders an analysis run as a markdown document. The full
// structured record travels in a YAML frontmatter block between ---
// delimiters, so a document can be decoded back; the body repeats it as
// human-readable tables.
package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"loopmodel/internal/analysis"
)

// Document is one rendered run.
type Document struct {
	Tags      []string         `yaml:"tags"`
	Profile   string           `yaml:"profile"`
	InputHash string           `yaml:"input_hash"`
	Report    *analysis.Report `yaml:"report"`
}

// New wraps rep for the named profile. The hash identifies the inputs the
// report was computed from.
func New(rep *analysis.Report, profile, inputHash string) *Document {
	return &Document{
		Tags:      []string{"loopmodel/report", "program/" + sanitize(rep.Program)},
		Profile:   profile,
		InputHash: inputHash,
		Report:    rep,
	}
}

// InputHash digests a program file and a profile file.
func InputHash(program, profile []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\n", len(program))
	h.Write(program)
	h.Write(profile)
	return hex.EncodeToString(h.Sum(nil))
}

// Encode renders d as markdown with frontmatter.
func Encode(d *Document) ([]byte, error) {
	if d.Report == nil {
		return nil, fmt.Errorf("report: document has no report")
	}
	tags := append([]string(nil), d.Tags...)
	sort.Strings(tags)
	hdr := *d
	hdr.Tags = tags
	fm, err := yaml.Marshal(&hdr)
	if err != nil {
		return nil, fmt.Errorf("report: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(Body(d.Report, d.Profile))
	return buf.Bytes(), nil
}

// Decode reads back the structured record of a document written by Encode.
func Decode(data []byte) (*Document, error) {
	fm, _, err := split(data)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := yaml.Unmarshal(fm, &d); err != nil {
		return nil, fmt.Errorf("report: unmarshal frontmatter: %w", err)
	}
	if d.Report == nil {
		return nil, fmt.Errorf("report: frontmatter has no report")
	}
	return &d, nil
}

// split separates the frontmatter block from the body. The document must
// open with "---\n".
func split(data []byte) (fm, body []byte, err error) {
	const delim = "---\n"
	if !bytes.HasPrefix(data, []byte(delim)) {
		return nil, nil, fmt.Errorf("report: missing opening --- delimiter")
	}
	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return nil, nil, fmt.Errorf("report: missing closing --- delimiter")
	}
	fm = rest[:idx+1]
	body = bytes.TrimPrefix(rest[idx+4:], []byte("\n"))
	return fm, body, nil
}

// Write encodes d to path, creating parent directories. It reports whether
// the file changed: an existing document with the same input hash is left
// alone.
func Write(path string, d *Document) (bool, error) {
	if old, err := Read(path); err == nil && d.InputHash != "" && old.InputHash == d.InputHash {
		return false, nil
	}
	data, err := Encode(d)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// Read decodes the document at path.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	d, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Filename is the document name for a program.
func Filename(program string) string {
	name := sanitize(program)
	if name == "" {
		name = "program"
	}
	return name + ".md"
}

// sanitize replaces / and . with -, collapses runs of - and trims them
// from both ends.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, ".", "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}
