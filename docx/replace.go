package docx

import (
	"sort"
	"strings"

	"github.com/beevik/etree"
)

type match struct {
	start, end int
	value      string
}

// replaceAll substitutes every placeholder occurrence in the document.
// Inserted values are never rescanned, so a value containing "{{" stays
// literal text.
func replaceAll(doc *etree.Document, repl map[string]string) {
	for _, p := range doc.FindElements("//w:p") {
		replaceInParagraph(p, repl)
	}
}

// replaceInParagraph matches tokens against the concatenated run text of the
// paragraph, then splices the values back onto the w:t nodes. Matches are
// applied right to left so earlier offsets stay valid.
func replaceInParagraph(p *etree.Element, repl map[string]string) {
	nodes, full := textNodes(p)
	if len(nodes) == 0 {
		return
	}

	var matches []match
	for token, value := range repl {
		from := 0
		for {
			i := strings.Index(full[from:], token)
			if i < 0 {
				break
			}
			start := from + i
			matches = append(matches, match{start: start, end: start + len(token), value: value})
			from = start + len(token)
		}
	}
	if len(matches) == 0 {
		return
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start > matches[j].start })
	for _, m := range matches {
		splice(nodes, m.start, m.end, m.value)
	}
}

// splice replaces the text between byte offsets start and end of the
// concatenated node text with value. A token fully inside one node is
// replaced in place; a token split across runs is written into the first
// node, so it inherits that run's w:rPr formatting, while the remaining
// nodes are cleared or trimmed.
func splice(nodes []*etree.Element, start, end int, value string) {
	var startNode, endNode *etree.Element
	var startOffset, endOffset int
	currentPos := 0

	for _, t := range nodes {
		text := t.Text()
		textLen := len(text)

		if startNode == nil && currentPos <= start && start < currentPos+textLen {
			startNode = t
			startOffset = start - currentPos
		}
		if endNode == nil && currentPos < end && end <= currentPos+textLen {
			endNode = t
			endOffset = end - currentPos
		}
		currentPos += textLen
	}
	if startNode == nil || endNode == nil {
		return
	}

	if startNode == endNode {
		text := startNode.Text()
		setText(startNode, text[:startOffset]+value+text[endOffset:])
		return
	}

	setText(startNode, startNode.Text()[:startOffset]+value)

	inside := false
	for _, t := range nodes {
		if t == startNode {
			inside = true
			continue
		}
		if !inside {
			continue
		}
		if t == endNode {
			setText(t, t.Text()[endOffset:])
			break
		}
		t.SetText("")
	}
}

// setText updates a w:t node, marking it xml:space="preserve" when the new
// text carries leading or trailing whitespace Word would otherwise drop.
func setText(t *etree.Element, s string) {
	t.SetText(s)
	if s != strings.TrimSpace(s) {
		t.CreateAttr("xml:space", "preserve")
	}
}
