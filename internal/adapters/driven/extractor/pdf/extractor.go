// Package pdf extracts text from PDF uploads using pdfcpu. Page
// content streams are scraped for text-showing operators; no external
// tooling is required.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdflib "github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles PDF files.
type Extractor struct {
	conf *model.Configuration
}

// New creates a PDF extractor. Validation is relaxed because plenty of
// real-world ebooks carry minor structural defects.
func New() *Extractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Extractor{conf: conf}
}

// Supports reports whether the extractor handles the file type.
func (e *Extractor) Supports(fileType domain.FileType) bool {
	return fileType == domain.FileTypePDF
}

// Extract returns the text of all pages, in order, joined with blank
// lines. Pages whose content cannot be read are skipped; the whole
// document fails only when nothing is extractable.
func (e *Extractor) Extract(ctx context.Context, data []byte, _ domain.FileType) (string, error) {
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), e.conf)
	if err != nil {
		return "", &domain.ExtractionError{FileType: domain.FileTypePDF, Reason: "unreadable file", Err: err}
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return "", &domain.ExtractionError{FileType: domain.FileTypePDF, Reason: "invalid document structure", Err: err}
	}

	pages := make([]string, 0, pdfCtx.PageCount)
	broken := 0

	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		r, err := pdflib.ExtractPageContent(pdfCtx, pageNr)
		if err != nil {
			broken++
			logger.Debug("skipping unreadable pdf page", "page", pageNr, "error", err)
			continue
		}
		if r == nil {
			// Page without a content stream.
			continue
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			broken++
			continue
		}
		if text := contentText(buf.Bytes()); text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		reason := "no extractable text"
		if broken > 0 {
			reason = fmt.Sprintf("no extractable text (%d unreadable pages)", broken)
		}
		return "", &domain.ExtractionError{FileType: domain.FileTypePDF, Reason: reason}
	}

	return strings.Join(pages, "\n\n"), nil
}

// wordGapKern is the TJ kern adjustment treated as a word gap. Kerns
// are expressed in thousandths of the font size; a typical inter-word
// advance is around -250.
const wordGapKern = -150

// contentText scrapes the text-showing operators (Tj, TJ, ', ") out of
// a decoded content stream. Positioning operators become spaces or
// line breaks so reading order survives. Fonts with custom encodings
// come out garbled; extracting without font tables cannot do better.
func contentText(stream []byte) string {
	var (
		out     strings.Builder
		line    strings.Builder
		nums    []float64
		inArray bool
	)

	flushLine := func() {
		text := strings.Join(strings.Fields(line.String()), " ")
		line.Reset()
		if text != "" {
			out.WriteString(text)
			out.WriteByte('\n')
		}
	}

	i, n := 0, len(stream)
	for i < n {
		c := stream[i]
		switch {
		case c == '(':
			s, next := literalString(stream, i)
			line.WriteString(s)
			i = next
			nums = nums[:0]

		case c == '<':
			if i+1 < n && stream[i+1] == '<' {
				i += 2 // dictionary, not a string
				continue
			}
			s, next := hexString(stream, i)
			line.WriteString(s)
			i = next
			nums = nums[:0]

		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++

		case c == '/':
			// Skip name tokens so /Td and friends never read as operators.
			i++
			for i < n && !isDelimiter(stream[i]) {
				i++
			}

		case c == '%':
			for i < n && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}

		case isNumberStart(c):
			start := i
			i++
			for i < n && isNumberChar(stream[i]) {
				i++
			}
			if v, err := strconv.ParseFloat(string(stream[start:i]), 64); err == nil {
				if inArray && v <= wordGapKern {
					line.WriteByte(' ')
				}
				nums = append(nums, v)
			}

		case isOperatorChar(c):
			start := i
			i++
			for i < n && isOperatorChar(stream[i]) {
				i++
			}
			switch string(stream[start:i]) {
			case "Td", "TD":
				// A pure horizontal move stays on the same line.
				if len(nums) >= 2 && nums[len(nums)-1] == 0 {
					line.WriteByte(' ')
				} else {
					flushLine()
				}
			case "T*", "Tm", "BT", "ET", "'", "\"":
				flushLine()
			case "ID":
				// Inline image data runs until EI; skip the binary blob.
				for i+1 < n && !(stream[i] == 'E' && stream[i+1] == 'I') {
					i++
				}
				i += 2
			}
			nums = nums[:0]

		default:
			i++
		}
	}
	flushLine()

	return strings.TrimRight(out.String(), "\n")
}

// literalString parses a ( ... ) string starting at start and returns
// the decoded text and the index after the closing paren.
func literalString(stream []byte, start int) (string, int) {
	var raw []byte
	depth := 1
	i := start + 1
	n := len(stream)

	for i < n && depth > 0 {
		c := stream[i]
		switch c {
		case '\\':
			i++
			if i >= n {
				break
			}
			switch esc := stream[i]; esc {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b', 'f':
				// backspace and form feed carry no text
			case '\n':
				// escaped newline continues the string
			case '\r':
				if i+1 < n && stream[i+1] == '\n' {
					i++
				}
			default:
				if esc >= '0' && esc <= '7' {
					v := int(esc - '0')
					for k := 0; k < 2 && i+1 < n && stream[i+1] >= '0' && stream[i+1] <= '7'; k++ {
						i++
						v = v*8 + int(stream[i]-'0')
					}
					raw = append(raw, byte(v))
				} else {
					raw = append(raw, esc)
				}
			}
			i++
		case '(':
			depth++
			raw = append(raw, c)
			i++
		case ')':
			depth--
			if depth > 0 {
				raw = append(raw, c)
			}
			i++
		default:
			raw = append(raw, c)
			i++
		}
	}
	return decodeString(raw), i
}

// hexString parses a < ... > string starting at start and returns the
// decoded text and the index after the closing bracket.
func hexString(stream []byte, start int) (string, int) {
	i := start + 1
	n := len(stream)
	var digits []byte

	for i < n && stream[i] != '>' {
		if isHexDigit(stream[i]) {
			digits = append(digits, stream[i])
		}
		i++
	}
	if i < n {
		i++ // consume '>'
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	raw := make([]byte, 0, len(digits)/2)
	for j := 0; j+1 < len(digits); j += 2 {
		raw = append(raw, unhex(digits[j])<<4|unhex(digits[j+1]))
	}
	return decodeString(raw), i
}

// decodeString maps string bytes to runes. UTF-16BE strings declare
// themselves with a BOM; everything else is treated as WinAnsi, which
// matches Latin-1 outside the 0x80-0x9F range.
func decodeString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		u := make([]uint16, 0, (len(raw)-2)/2)
		for j := 2; j+1 < len(raw); j += 2 {
			u = append(u, uint16(raw[j])<<8|uint16(raw[j+1]))
		}
		return string(utf16.Decode(u))
	}

	var b strings.Builder
	for _, c := range raw {
		switch {
		case c == '\n' || c == '\t':
			b.WriteByte(c)
		case c == '\r':
			b.WriteByte('\n')
		case c < 0x20:
			// control bytes carry no text
		case c < 0x80:
			b.WriteByte(c)
		default:
			if r, ok := winAnsi[c]; ok {
				b.WriteRune(r)
			} else {
				b.WriteRune(rune(c))
			}
		}
	}
	return b.String()
}

// winAnsi covers the typographic range where WinAnsiEncoding diverges
// from Latin-1.
var winAnsi = map[byte]rune{
	0x82: '‚', 0x83: 'ƒ', 0x84: '„', 0x85: '…',
	0x86: '†', 0x87: '‡', 0x88: 'ˆ', 0x89: '‰',
	0x8A: 'Š', 0x8B: '‹', 0x8C: 'Œ', 0x91: '‘',
	0x92: '’', 0x93: '“', 0x94: '”', 0x95: '•',
	0x96: '–', 0x97: '—', 0x98: '˜', 0x99: '™',
	0x9A: 'š', 0x9B: '›', 0x9C: 'œ', 0x9F: 'Ÿ',
}

func isOperatorChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '*' || c == '\'' || c == '"'
}

func isNumberStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}

func isNumberChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-'
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0,
		'(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
