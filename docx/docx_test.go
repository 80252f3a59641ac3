package docx

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// baseDocument mirrors the school template layout: a styled title, the big
// subject line, and a details table holding the student placeholders.
const baseDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:rPr><w:b/><w:rFonts w:ascii="Arial"/><w:sz w:val="48"/></w:rPr><w:t>ACADEMIC ASSESSMENT COVER</w:t></w:r></w:p>
    <w:p><w:r><w:rPr><w:b/><w:sz w:val="72"/></w:rPr><w:t>{{Subject}}</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:rPr><w:b/></w:rPr><w:t>Student Name:</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:rPr><w:rFonts w:ascii="Times New Roman"/><w:sz w:val="24"/></w:rPr><w:t>{{Name}}</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:rPr><w:b/></w:rPr><w:t>Student Surname:</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>{{Surname}}</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:rPr><w:b/></w:rPr><w:t>Class:</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>{{Class}}</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:rPr><w:b/></w:rPr><w:t>Academic Year:</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>{{Year}}</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
    <w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr>
  </w:body>
</w:document>`

var testStudent = map[string]string{
	"Name":    "Ana",
	"Surname": "Popescu",
	"Class":   "10B",
	"Year":    "2026",
}

// writeTemplate packs the given parts into a .docx file under a test temp
// directory. word/document.xml must be among the parts.
func writeTemplate(t *testing.T, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	all := map[string]string{
		"[Content_Types].xml": contentTypesXML,
		"_rels/.rels":         relsXML,
	}
	for name, data := range parts {
		all[name] = data
	}
	for name, data := range all {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func openTestTemplate(t *testing.T, parts map[string]string) *Template {
	t.Helper()
	tpl, err := OpenTemplate(writeTemplate(t, parts))
	require.NoError(t, err)
	t.Cleanup(func() { tpl.Close() })
	return tpl
}

// readOutputPart parses one XML part out of generated document bytes.
func readOutputPart(t *testing.T, data []byte, part string) *etree.Document {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != part {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		doc := etree.NewDocument()
		_, err = doc.ReadFrom(rc)
		require.NoError(t, err)
		return doc
	}
	t.Fatalf("part %s not found in output archive", part)
	return nil
}

func docText(doc *etree.Document) string {
	var sb strings.Builder
	for _, el := range doc.FindElements("//w:t") {
		sb.WriteString(el.Text())
	}
	return sb.String()
}

func pageBreakCount(doc *etree.Document) int {
	n := 0
	for _, br := range doc.FindElements("//w:br") {
		if br.SelectAttrValue("w:type", "") == "page" {
			n++
		}
	}
	return n
}

func TestOpenTemplate_Missing(t *testing.T) {
	_, err := OpenTemplate(filepath.Join(t.TempDir(), "nope.docx"))
	require.ErrorIs(t, err, ErrTemplateMissing)
}

func TestScan_RecordsFormatting(t *testing.T) {
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": baseDocument})

	formats, err := tpl.Scan()
	require.NoError(t, err)
	require.Len(t, formats, len(RequiredTags))

	subject := formats["Subject"]
	assert.True(t, subject.Bold)
	assert.Equal(t, 72, subject.SizeHalfPoints)

	name := formats["Name"]
	assert.Equal(t, "Times New Roman", name.Font)
	assert.Equal(t, 24, name.SizeHalfPoints)
	assert.False(t, name.Bold)
}

func TestScan_MissingYear(t *testing.T) {
	doc := strings.ReplaceAll(baseDocument, "{{Year}}", "2026")
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": doc})

	_, err := tpl.Scan()
	require.ErrorIs(t, err, ErrPlaceholderMissing)
	assert.Contains(t, err.Error(), "{{Year}}")
}

func TestScan_FindsTagSplitAcrossRuns(t *testing.T) {
	split := `<w:p>` +
		`<w:r><w:rPr><w:i/></w:rPr><w:t>{{Ye</w:t></w:r>` +
		`<w:r><w:t>ar</w:t></w:r>` +
		`<w:r><w:t>}}</w:t></w:r>` +
		`</w:p>`
	doc := strings.Replace(baseDocument,
		`<w:tc><w:p><w:r><w:t>{{Year}}</w:t></w:r></w:p></w:tc>`,
		`<w:tc>`+split+`</w:tc>`, 1)
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": doc})

	formats, err := tpl.Scan()
	require.NoError(t, err)
	assert.True(t, formats["Year"].Italic, "format should come from the run holding the tag start")
}

func TestGenerate_PageCountAndOrder(t *testing.T) {
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": baseDocument})

	subjects := []string{"Algebra", "Biology", "Chemistry"}
	data, err := tpl.Generate(testStudent, subjects)
	require.NoError(t, err)

	doc := readOutputPart(t, data, "word/document.xml")
	assert.Equal(t, len(subjects)-1, pageBreakCount(doc), "pages are separated by single page breaks")

	text := docText(doc)
	last := -1
	for _, subject := range subjects {
		idx := strings.Index(text, subject)
		assert.Greater(t, idx, last, "subject %s should appear after the previous one", subject)
		last = idx
	}
	assert.NotContains(t, text, "{{", "no residual placeholder tokens")
	assert.Contains(t, text, "Ana")
	assert.Contains(t, text, "Popescu")
	assert.Contains(t, text, "10B")
	assert.Contains(t, text, "2026")
}

func TestGenerate_KeepsPlaceholderFormatting(t *testing.T) {
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": baseDocument})

	data, err := tpl.Generate(testStudent, []string{"Algebra"})
	require.NoError(t, err)
	doc := readOutputPart(t, data, "word/document.xml")

	var found bool
	for _, el := range doc.FindElements("//w:t") {
		if el.Text() != "Algebra" {
			continue
		}
		found = true
		rPr := el.Parent().SelectElement("w:rPr")
		require.NotNil(t, rPr, "substituted run keeps its properties")
		assert.NotNil(t, rPr.SelectElement("w:b"))
		sz := rPr.SelectElement("w:sz")
		require.NotNil(t, sz)
		assert.Equal(t, "72", sz.SelectAttrValue("w:val", ""))
	}
	require.True(t, found, "subject text should be present in its own run")
}

func TestGenerate_DuplicateSubjects(t *testing.T) {
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": baseDocument})

	data, err := tpl.Generate(testStudent, []string{"Math", "Math"})
	require.NoError(t, err)
	doc := readOutputPart(t, data, "word/document.xml")

	assert.Equal(t, 1, pageBreakCount(doc))
	assert.Equal(t, 2, strings.Count(docText(doc), "Math"))
}

func TestGenerate_SplitRunSubstitution(t *testing.T) {
	// Spell-check artifacts split tags across runs; the merged paragraph
	// text must still match and the value lands in the first run.
	split := `<w:p>` +
		`<w:r><w:rPr><w:rFonts w:ascii="Times New Roman"/></w:rPr><w:t>{{Na</w:t></w:r>` +
		`<w:r><w:t>me</w:t></w:r>` +
		`<w:r><w:t>}}</w:t></w:r>` +
		`</w:p>`
	doc := strings.Replace(baseDocument,
		`<w:p><w:r><w:rPr><w:rFonts w:ascii="Times New Roman"/><w:sz w:val="24"/></w:rPr><w:t>{{Name}}</w:t></w:r></w:p>`,
		split, 1)
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": doc})

	data, err := tpl.Generate(testStudent, []string{"Algebra"})
	require.NoError(t, err)
	out := readOutputPart(t, data, "word/document.xml")

	text := docText(out)
	assert.Contains(t, text, "Ana")
	assert.NotContains(t, text, "{{")

	var found bool
	for _, el := range out.FindElements("//w:t") {
		if el.Text() != "Ana" {
			continue
		}
		found = true
		rPr := el.Parent().SelectElement("w:rPr")
		require.NotNil(t, rPr)
		fonts := rPr.SelectElement("w:rFonts")
		require.NotNil(t, fonts)
		assert.Equal(t, "Times New Roman", fonts.SelectAttrValue("w:ascii", ""))
	}
	require.True(t, found)
}

func TestGenerate_MissingPlaceholderProducesNoOutput(t *testing.T) {
	doc := strings.ReplaceAll(baseDocument, "{{Year}}", "2026")
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": doc})

	data, err := tpl.Generate(testStudent, []string{"Algebra"})
	require.ErrorIs(t, err, ErrPlaceholderMissing)
	assert.Nil(t, data)
}

func TestGenerate_BracesInSubjectStayLiteral(t *testing.T) {
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": baseDocument})

	data, err := tpl.Generate(testStudent, []string{"{{Robotics}}"})
	require.NoError(t, err)
	doc := readOutputPart(t, data, "word/document.xml")

	// The inserted value is literal text, never re-matched as a tag.
	assert.Contains(t, docText(doc), "{{Robotics}}")
}

func TestGenerate_SectionBreaksForLandscapeTemplate(t *testing.T) {
	doc := strings.Replace(baseDocument,
		`<w:pgSz w:w="11906" w:h="16838"/>`,
		`<w:pgSz w:w="16838" w:h="11906" w:orient="landscape"/>`, 1)
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": doc})

	data, err := tpl.Generate(testStudent, []string{"Algebra", "Biology"})
	require.NoError(t, err)
	out := readOutputPart(t, data, "word/document.xml")

	assert.Equal(t, 0, pageBreakCount(out), "landscape setup uses section breaks")

	// One separator section between the two pages plus the final body sectPr,
	// each carrying the template's page size.
	sectPrs := out.FindElements("//w:sectPr")
	require.Len(t, sectPrs, 2)
	for _, sectPr := range sectPrs {
		pgSz := sectPr.SelectElement("w:pgSz")
		require.NotNil(t, pgSz)
		assert.Equal(t, "landscape", pgSz.SelectAttrValue("w:orient", ""))
	}
}

func TestGenerate_HeaderAndFooterParts(t *testing.T) {
	header := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:p><w:r><w:t>{{Name}} {{Surname}} - {{Subject}}</w:t></w:r></w:p>
</w:hdr>`
	tpl := openTestTemplate(t, map[string]string{
		"word/document.xml": baseDocument,
		"word/header1.xml":  header,
	})

	data, err := tpl.Generate(testStudent, []string{"Algebra", "Biology"})
	require.NoError(t, err)

	out := readOutputPart(t, data, "word/header1.xml")
	text := docText(out)
	assert.Contains(t, text, "Ana Popescu")
	// A header spans every page, so Subject resolves to the full list there.
	assert.Contains(t, text, "Algebra, Biology")
	assert.NotContains(t, text, "{{")
}

func TestGenerate_TemplateReusableAcrossCalls(t *testing.T) {
	tpl := openTestTemplate(t, map[string]string{"word/document.xml": baseDocument})

	first, err := tpl.Generate(testStudent, []string{"Algebra"})
	require.NoError(t, err)

	second, err := tpl.Generate(map[string]string{
		"Name": "Ion", "Surname": "Ionescu", "Class": "9A", "Year": "2026",
	}, []string{"History"})
	require.NoError(t, err)

	assert.Contains(t, docText(readOutputPart(t, first, "word/document.xml")), "Ana")
	text := docText(readOutputPart(t, second, "word/document.xml"))
	assert.Contains(t, text, "Ion")
	assert.NotContains(t, text, "Ana", "earlier calls must not leak into later ones")
}
