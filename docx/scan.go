package docx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// RunFormat is the formatting in effect at a placeholder's first occurrence.
// Size is in half-points, as stored in w:sz.
type RunFormat struct {
	Font           string `json:"font,omitempty"`
	SizeHalfPoints int    `json:"sizeHalfPoints,omitempty"`
	Bold           bool   `json:"bold"`
	Italic         bool   `json:"italic"`
	Underline      bool   `json:"underline"`
}

// Scan maps every required tag to the formatting of the run holding the
// first character of its first occurrence. Paragraph text is concatenated
// across runs before matching, so tags split by spell-check artifacts are
// still found. Read-only.
//
// If any required tag is absent from the whole document (header and footer
// parts included), Scan returns ErrPlaceholderMissing naming every missing
// tag, along with the formats it did find.
func (t *Template) Scan() (map[string]RunFormat, error) {
	formats := make(map[string]RunFormat)

	for _, d := range t.allParts() {
		for _, p := range d.FindElements("//w:p") {
			nodes, full := textNodes(p)
			for _, tag := range RequiredTags {
				if _, ok := formats[tag]; ok {
					continue
				}
				idx := strings.Index(full, Placeholder(tag))
				if idx < 0 {
					continue
				}
				node, _ := nodeAt(nodes, idx)
				if node == nil {
					continue
				}
				formats[tag] = formatOf(node)
			}
		}
	}

	var missing []string
	for _, tag := range RequiredTags {
		if _, ok := formats[tag]; !ok {
			missing = append(missing, Placeholder(tag))
		}
	}
	if len(missing) > 0 {
		return formats, fmt.Errorf("%w: %s", ErrPlaceholderMissing, strings.Join(missing, ", "))
	}
	return formats, nil
}

// textNodes collects the w:t elements of a paragraph together with their
// concatenated text.
func textNodes(p *etree.Element) ([]*etree.Element, string) {
	var nodes []*etree.Element
	var sb strings.Builder
	for _, t := range p.FindElements(".//w:t") {
		nodes = append(nodes, t)
		sb.WriteString(t.Text())
	}
	return nodes, sb.String()
}

// nodeAt maps a byte offset in the concatenated paragraph text back to the
// w:t node containing it and the offset within that node.
func nodeAt(nodes []*etree.Element, pos int) (*etree.Element, int) {
	currentPos := 0
	for _, t := range nodes {
		textLen := len(t.Text())
		if currentPos <= pos && pos < currentPos+textLen {
			return t, pos - currentPos
		}
		currentPos += textLen
	}
	return nil, 0
}

// formatOf reads the run properties in effect for a w:t node.
func formatOf(t *etree.Element) RunFormat {
	var f RunFormat
	r := t.Parent()
	if r == nil {
		return f
	}
	rPr := r.SelectElement("w:rPr")
	if rPr == nil {
		return f
	}

	if fonts := rPr.SelectElement("w:rFonts"); fonts != nil {
		f.Font = fonts.SelectAttrValue("w:ascii", "")
	}
	if sz := rPr.SelectElement("w:sz"); sz != nil {
		if v, err := strconv.Atoi(sz.SelectAttrValue("w:val", "")); err == nil {
			f.SizeHalfPoints = v
		}
	}
	f.Bold = flagOn(rPr.SelectElement("w:b"))
	f.Italic = flagOn(rPr.SelectElement("w:i"))
	f.Underline = flagOn(rPr.SelectElement("w:u"))
	return f
}

// flagOn reports whether a toggle property element is present and not
// explicitly switched off via w:val.
func flagOn(el *etree.Element) bool {
	if el == nil {
		return false
	}
	switch el.SelectAttrValue("w:val", "") {
	case "0", "false", "none":
		return false
	}
	return true
}
