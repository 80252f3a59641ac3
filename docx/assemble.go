package docx

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
)

// Portrait page sizes (twentieths of a point) that count as default page
// setup: US Letter and ISO A4.
var defaultPageSizes = map[[2]string]bool{
	{"12240", "15840"}: true,
	{"11906", "16838"}: true,
}

// Generate renders the assembled document: one page per subject, in order,
// each a copy of the template body with every placeholder resolved. Pages
// are separated by a plain page break, or by a section break when the
// template declares non-default page setup that must survive per page.
// All-or-nothing: on any error no bytes are returned.
//
// student maps the Name/Surname/Class/Year tags to their values; the Subject
// tag is resolved per page.
func (t *Template) Generate(student map[string]string, subjects []string) ([]byte, error) {
	if len(subjects) == 0 {
		return nil, fmt.Errorf("no subjects to generate")
	}
	if _, err := t.Scan(); err != nil {
		return nil, err
	}

	out := t.doc.Copy()
	body := out.FindElement("//w:body")
	if body == nil {
		return nil, fmt.Errorf("template has no w:body element")
	}
	sectPr := body.SelectElement("w:sectPr")
	for _, child := range append([]etree.Token(nil), body.Child...) {
		body.RemoveChild(child)
	}

	sectionBreaks := t.usesSectionBreaks()
	for i, subject := range subjects {
		page := t.doc.Copy()
		replaceAll(page, withSubject(student, subject))

		pageBody := page.FindElement("//w:body")
		if pageBody == nil {
			return nil, fmt.Errorf("template has no w:body element")
		}
		for _, child := range append([]etree.Token(nil), pageBody.Child...) {
			if el, ok := child.(*etree.Element); ok && el.FullTag() == "w:sectPr" {
				continue
			}
			body.AddChild(child)
		}

		if i < len(subjects)-1 {
			body.AddChild(t.pageSeparator(sectionBreaks))
		}
	}
	if sectPr != nil {
		body.AddChild(sectPr)
	}

	out.Indent(2)
	if err := out.WriteToFile(filepath.Join(t.dir, "word", "document.xml")); err != nil {
		return nil, fmt.Errorf("failed to write document body: %w", err)
	}

	// Header and footer parts span all pages, so the Subject tag there
	// resolves to the full subject list.
	partRepl := withSubject(student, strings.Join(subjects, ", "))
	for path, part := range t.parts {
		cp := part.Copy()
		replaceAll(cp, partRepl)
		cp.Indent(2)
		if err := cp.WriteToFile(filepath.Join(t.dir, filepath.FromSlash(path))); err != nil {
			return nil, fmt.Errorf("failed to write part %s: %w", path, err)
		}
	}

	var buf bytes.Buffer
	if err := ZipDir(t.dir, &buf); err != nil {
		return nil, fmt.Errorf("failed to pack document: %w", err)
	}
	return buf.Bytes(), nil
}

// withSubject merges the per-page subject value into the student tag map.
func withSubject(student map[string]string, subject string) map[string]string {
	repl := make(map[string]string, len(student)+1)
	for tag, value := range student {
		repl[Placeholder(tag)] = value
	}
	repl[Placeholder("Subject")] = subject
	return repl
}

// usesSectionBreaks reports whether the template's page setup deviates from
// default portrait Letter/A4, in which case each page needs its own section
// to keep that setup.
func (t *Template) usesSectionBreaks() bool {
	pgSz := t.doc.FindElement("//w:body/w:sectPr/w:pgSz")
	if pgSz == nil {
		return false
	}
	if pgSz.SelectAttrValue("w:orient", "") == "landscape" {
		return true
	}
	w := pgSz.SelectAttrValue("w:w", "")
	h := pgSz.SelectAttrValue("w:h", "")
	if w == "" || h == "" {
		return false
	}
	return !defaultPageSizes[[2]string{w, h}]
}

// pageSeparator builds the break inserted between pages: a paragraph ending
// the current section (carrying a copy of the template's sectPr), or a plain
// page break run.
func (t *Template) pageSeparator(sectionBreak bool) *etree.Element {
	p := newWEl("p")
	if sectionBreak {
		if sectPr := t.doc.FindElement("//w:body/w:sectPr"); sectPr != nil {
			pPr := newWEl("pPr")
			pPr.AddChild(sectPr.Copy())
			p.AddChild(pPr)
			return p
		}
	}
	r := newWEl("r")
	br := newWEl("br")
	br.CreateAttr("w:type", "page")
	r.AddChild(br)
	p.AddChild(r)
	return p
}

func newWEl(tag string) *etree.Element {
	return &etree.Element{Tag: "w:" + tag}
}
