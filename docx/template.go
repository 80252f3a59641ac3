// Package docx renders cover pages from a WordprocessingML template:
// it locates {{Tag}} placeholders, substitutes values while keeping the
// surrounding run formatting, and assembles one page per subject into a
// single document.
package docx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
)

var (
	// ErrTemplateMissing reports an absent template file.
	ErrTemplateMissing = errors.New("template not found")
	// ErrPlaceholderMissing reports required tags absent from the template.
	// The wrapping message names every missing tag.
	ErrPlaceholderMissing = errors.New("placeholder missing from template")
)

// RequiredTags is the closed set of placeholder tags a template must carry.
var RequiredTags = []string{"Name", "Surname", "Class", "Year", "Subject"}

// Placeholder returns the literal marker for a tag, e.g. "{{Name}}".
func Placeholder(tag string) string {
	return "{{" + tag + "}}"
}

// Template is an opened, unpacked .docx template. The parsed XML trees are
// read-only after open; every Generate call works on copies, so one Template
// can render a whole batch. Close releases the unpacked directory.
type Template struct {
	dir   string
	doc   *etree.Document            // word/document.xml
	parts map[string]*etree.Document // header/footer parts, keyed by archive path
}

// OpenTemplate unpacks the template at path into a temp directory and parses
// its document body plus any header and footer parts.
func OpenTemplate(path string) (*Template, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, path)
		}
		return nil, fmt.Errorf("failed to stat template %s: %w", path, err)
	}

	dir, err := os.MkdirTemp("", "coverpages_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	t := &Template{dir: dir, parts: make(map[string]*etree.Document)}
	if err := t.load(path); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return t, nil
}

func (t *Template) load(path string) error {
	if err := Unzip(path, t.dir); err != nil {
		return fmt.Errorf("failed to unpack template: %w", err)
	}

	doc, err := readPart(filepath.Join(t.dir, "word", "document.xml"))
	if err != nil {
		return fmt.Errorf("not a wordprocessing document: %w", err)
	}
	t.doc = doc

	for _, pattern := range []string{"header*.xml", "footer*.xml"} {
		paths, err := filepath.Glob(filepath.Join(t.dir, "word", pattern))
		if err != nil {
			return err
		}
		for _, p := range paths {
			part, err := readPart(p)
			if err != nil {
				return fmt.Errorf("failed to parse part %s: %w", filepath.Base(p), err)
			}
			rel, err := filepath.Rel(t.dir, p)
			if err != nil {
				return err
			}
			t.parts[filepath.ToSlash(rel)] = part
		}
	}
	return nil
}

// Close removes the unpacked template directory.
func (t *Template) Close() error {
	return os.RemoveAll(t.dir)
}

func readPart(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.WriteSettings = etree.WriteSettings{
		CanonicalAttrVal: true,
		CanonicalText:    true,
		CanonicalEndTags: true,
	}
	if err := doc.ReadFromFile(path); err != nil {
		return nil, err
	}
	return doc, nil
}

// allParts yields the document body followed by header/footer parts.
func (t *Template) allParts() []*etree.Document {
	docs := []*etree.Document{t.doc}
	for _, part := range t.parts {
		docs = append(docs, part)
	}
	return docs
}
