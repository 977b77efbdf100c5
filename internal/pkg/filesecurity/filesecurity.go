// Package filesecurity decides whether a book file may be stored or served.
//
// Checks run in order: format allow-list (extension and declared mime type),
// magic-number signature, then a pattern scan of at most MaxScanBytes of
// content. Any file type outside the allow-list is rejected.
package filesecurity

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const MaxScanBytes = 1 << 20

const (
	MimePDF  = "application/pdf"
	MimeEPUB = "application/epub+zip"
	MimeMOBI = "application/x-mobipocket-ebook"
	MimeTXT  = "text/plain"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Rejection reasons.
const (
	ReasonUnsupportedExtension = "unsupported_extension"
	ReasonUnsupportedMimeType  = "unsupported_mime_type"
	ReasonSignatureMismatch    = "signature_mismatch"
	ReasonHighRiskContent      = "high_risk_content"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var allowedExtensions = map[string]string{
	".pdf":  MimePDF,
	".epub": MimeEPUB,
	".mobi": MimeMOBI,
	".txt":  MimeTXT,
	".doc":  MimeDOC,
	".docx": MimeDOCX,
}

var allowedMimeTypes = map[string]bool{
	MimePDF:  true,
	MimeEPUB: true,
	MimeMOBI: true,
	MimeTXT:  true,
	MimeDOC:  true,
	MimeDOCX: true,
}

type signature struct {
	offset int
	magic  []byte
}

var signatures = map[string]signature{
	MimePDF:  {0, []byte("%PDF")},
	MimeEPUB: {0, []byte{'P', 'K', 0x03, 0x04}},
	MimeDOCX: {0, []byte{'P', 'K', 0x03, 0x04}},
	MimeDOC:  {0, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},
	MimeMOBI: {60, []byte("BOOKMOBI")},
}

type patternCategory struct {
	name      string
	needles   []string
	appliesTo func(mime string) bool
}

func anyType(string) bool { return true }

func pdfOnly(m string) bool { return m == MimePDF }

func archiveType(m string) bool { return m == MimeEPUB || m == MimeDOCX }

var categories = []patternCategory{
	{"script_tag", []string{"<script"}, anyType},
	{"script_url", []string{"javascript:", "vbscript:"}, anyType},
	{"eval_call", []string{"eval("}, anyType},
	{"document_write", []string{"document.write"}, anyType},
	{"embedded_markup", []string{"<iframe", "<object", "<embed"}, anyType},
	{"pdf_javascript", []string{"/javascript", "/js", "/openaction", "/launch"}, pdfOnly},
	{"pdf_embedded_file", []string{"/embeddedfile"}, pdfOnly},
}

var archiveExecutable = regexp.MustCompile(`(?i)[\w\-./]+\.(exe|bat|cmd|scr|vbs|ps1|jar|msi|dll)\b`)

// Context identifies who the check runs for, for logging only.
type Context struct {
	Operation  string
	DeliveryID string
	ClientIP   string
}

type Analysis struct {
	RiskLevel      RiskLevel `json:"risk_level"`
	Categories     []string  `json:"categories"`
	SignatureValid bool      `json:"signature_valid"`
	DetectedMIME   string    `json:"detected_mime,omitempty"`
	BytesScanned   int       `json:"bytes_scanned"`
}

type Result struct {
	Valid    bool
	Reason   string
	Analysis *Analysis
}

type Validator struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger}
}

// ExpectedMimeType returns the allow-listed mime type for a file name.
func ExpectedMimeType(fileName string) (string, bool) {
	mime, ok := allowedExtensions[strings.ToLower(filepath.Ext(fileName))]
	return mime, ok
}

// Validate checks fileName and mimeType against the allow-list and, when buf
// is non-nil, the signature and content of the file.
func (v *Validator) Validate(fileName, mimeType string, buf []byte, fctx *Context) Result {
	if fctx == nil {
		fctx = &Context{}
	}
	mimeType = normalizeMime(mimeType)

	if _, ok := ExpectedMimeType(fileName); !ok {
		v.reject(fileName, ReasonUnsupportedExtension, fctx, nil)
		return Result{Reason: ReasonUnsupportedExtension}
	}
	if !allowedMimeTypes[mimeType] {
		v.reject(fileName, ReasonUnsupportedMimeType, fctx, nil)
		return Result{Reason: ReasonUnsupportedMimeType}
	}
	if buf == nil {
		return Result{Valid: true}
	}

	if len(buf) > MaxScanBytes {
		buf = buf[:MaxScanBytes]
	}

	analysis := &Analysis{
		SignatureValid: signatureMatches(mimeType, buf),
		DetectedMIME:   mimetype.Detect(buf).String(),
		BytesScanned:   len(buf),
	}
	analysis.Categories = scanContent(mimeType, buf)
	analysis.RiskLevel = riskFor(len(analysis.Categories))

	if !analysis.SignatureValid {
		v.reject(fileName, ReasonSignatureMismatch, fctx, analysis)
		return Result{Reason: ReasonSignatureMismatch, Analysis: analysis}
	}
	if analysis.RiskLevel == RiskHigh {
		v.reject(fileName, ReasonHighRiskContent, fctx, analysis)
		return Result{Reason: ReasonHighRiskContent, Analysis: analysis}
	}
	if analysis.RiskLevel == RiskMedium {
		v.logger.Warn("file passed with suspicious content",
			"file_name", fileName,
			"mime_type", mimeType,
			"categories", analysis.Categories,
			"detected_mime", analysis.DetectedMIME,
			"operation", fctx.Operation,
			"delivery_id", fctx.DeliveryID,
			"client_ip", fctx.ClientIP,
		)
	}

	return Result{Valid: true, Analysis: analysis}
}

func (v *Validator) reject(fileName, reason string, fctx *Context, a *Analysis) {
	attrs := []any{
		"file_name", fileName,
		"reason", reason,
		"operation", fctx.Operation,
		"delivery_id", fctx.DeliveryID,
		"client_ip", fctx.ClientIP,
	}
	if a != nil {
		attrs = append(attrs, "risk_level", a.RiskLevel, "categories", a.Categories, "detected_mime", a.DetectedMIME)
	}
	v.logger.Warn("file rejected by security validation", attrs...)
}

func normalizeMime(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
}

func signatureMatches(mimeType string, buf []byte) bool {
	sig, ok := signatures[mimeType]
	if !ok {
		// plain text has no signature; content analysis decides
		return true
	}
	end := sig.offset + len(sig.magic)
	if len(buf) < end {
		return false
	}
	return bytes.Equal(buf[sig.offset:end], sig.magic)
}

func scanContent(mimeType string, buf []byte) []string {
	text := strings.ToLower(string(buf))

	var matched []string
	for _, cat := range categories {
		if !cat.appliesTo(mimeType) {
			continue
		}
		for _, needle := range cat.needles {
			if strings.Contains(text, needle) {
				matched = append(matched, cat.name)
				break
			}
		}
	}
	if archiveType(mimeType) && archiveExecutable.Match(buf) {
		matched = append(matched, "archive_executable")
	}
	return matched
}

func riskFor(categoryCount int) RiskLevel {
	switch {
	case categoryCount >= 2:
		return RiskHigh
	case categoryCount == 1:
		return RiskMedium
	default:
		return RiskLow
	}
}
