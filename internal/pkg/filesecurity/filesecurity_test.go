package filesecurity

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booksweeps/internal/logging"
)

func newValidator() *Validator {
	return New(logging.Discard())
}

func pdfBody(extra string) []byte {
	return []byte("%PDF-1.7\n1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n" + extra + "\n%%EOF")
}

func mobiBody() []byte {
	buf := make([]byte, 128)
	copy(buf, "My Book Title")
	copy(buf[60:], "BOOKMOBI")
	return buf
}

func TestValidateAllowList(t *testing.T) {
	v := newValidator()

	for name, mime := range map[string]string{
		"book.pdf":  MimePDF,
		"book.EPUB": MimeEPUB,
		"book.mobi": MimeMOBI,
		"book.txt":  "text/plain; charset=utf-8",
		"book.doc":  MimeDOC,
		"book.docx": MimeDOCX,
	} {
		assert.True(t, v.Validate(name, mime, nil, nil).Valid, name)
	}

	res := v.Validate("book.exe", MimePDF, nil, nil)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonUnsupportedExtension, res.Reason)

	res = v.Validate("book.pdf", "application/x-msdownload", nil, nil)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonUnsupportedMimeType, res.Reason)

	res = v.Validate("book", MimePDF, nil, nil)
	assert.False(t, res.Valid)
}

func TestValidateSignatures(t *testing.T) {
	v := newValidator()

	assert.True(t, v.Validate("a.pdf", MimePDF, pdfBody(""), nil).Valid)
	assert.True(t, v.Validate("a.epub", MimeEPUB, []byte("PK\x03\x04\x14\x00mimetypeapplication/epub+zip"), nil).Valid)
	assert.True(t, v.Validate("a.doc", MimeDOC, append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 64)...), nil).Valid)
	assert.True(t, v.Validate("a.mobi", MimeMOBI, mobiBody(), nil).Valid)
	assert.True(t, v.Validate("a.txt", MimeTXT, []byte("Chapter One\nIt was a dark and stormy night."), nil).Valid)

	mismatches := []struct {
		name string
		mime string
		buf  []byte
	}{
		{"a.pdf", MimePDF, []byte("PK\x03\x04 not a pdf")},
		{"a.epub", MimeEPUB, pdfBody("")},
		{"a.mobi", MimeMOBI, []byte("short")},
		{"a.pdf", MimePDF, []byte{}},
	}
	for _, tc := range mismatches {
		res := v.Validate(tc.name, tc.mime, tc.buf, nil)
		assert.False(t, res.Valid, tc.name)
		assert.Equal(t, ReasonSignatureMismatch, res.Reason, tc.name)
	}
}

func TestSignatureMismatchWinsOverLowRisk(t *testing.T) {
	res := newValidator().Validate("clean.pdf", MimePDF, []byte("perfectly harmless text"), nil)

	require.NotNil(t, res.Analysis)
	assert.Equal(t, RiskLow, res.Analysis.RiskLevel)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonSignatureMismatch, res.Reason)
}

func TestContentRiskLevels(t *testing.T) {
	v := newValidator()

	medium := v.Validate("a.txt", MimeTXT, []byte("click javascript:void(0) for more"), nil)
	assert.True(t, medium.Valid)
	assert.Equal(t, RiskMedium, medium.Analysis.RiskLevel)
	assert.Equal(t, []string{"script_url"}, medium.Analysis.Categories)

	high := v.Validate("a.txt", MimeTXT, []byte("<SCRIPT>eval(atob('x'))</script>"), &Context{Operation: "upload"})
	assert.False(t, high.Valid)
	assert.Equal(t, ReasonHighRiskContent, high.Reason)
	assert.Equal(t, RiskHigh, high.Analysis.RiskLevel)
	assert.ElementsMatch(t, []string{"script_tag", "eval_call"}, high.Analysis.Categories)

	pdf := v.Validate("a.pdf", MimePDF, pdfBody("<< /OpenAction << /S /JavaScript /JS (app.alert(1)) >> /EmbeddedFiles 3 0 R >>"), nil)
	assert.False(t, pdf.Valid)
	assert.ElementsMatch(t, []string{"pdf_javascript", "pdf_embedded_file"}, pdf.Analysis.Categories)

	pdfMarkersInText := v.Validate("a.txt", MimeTXT, []byte("see /JavaScript and /EmbeddedFile in the PDF reference"), nil)
	assert.True(t, pdfMarkersInText.Valid)
	assert.Equal(t, RiskLow, pdfMarkersInText.Analysis.RiskLevel)
}

func TestArchiveExecutable(t *testing.T) {
	v := newValidator()
	buf := []byte("PK\x03\x04\x14\x00\x00\x00OEBPS/chapter1.xhtmlPK\x03\x04\x14\x00\x00\x00OEBPS/setup.exe")

	res := v.Validate("a.epub", MimeEPUB, buf, nil)
	assert.True(t, res.Valid)
	assert.Equal(t, RiskMedium, res.Analysis.RiskLevel)
	assert.Equal(t, []string{"archive_executable"}, res.Analysis.Categories)
}

func TestScanIsCapped(t *testing.T) {
	buf := append(pdfBody(""), bytes.Repeat([]byte{' '}, MaxScanBytes)...)
	buf = append(buf, []byte("<script>eval(1)</script>")...)

	res := newValidator().Validate("big.pdf", MimePDF, buf, nil)
	assert.True(t, res.Valid)
	assert.Equal(t, MaxScanBytes, res.Analysis.BytesScanned)
}

func TestExpectedMimeType(t *testing.T) {
	mime, ok := ExpectedMimeType("Dark Tides.EPUB")
	assert.True(t, ok)
	assert.Equal(t, MimeEPUB, mime)

	_, ok = ExpectedMimeType("setup.exe")
	assert.False(t, ok)
}
