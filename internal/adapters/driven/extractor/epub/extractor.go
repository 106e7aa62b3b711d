// Package epub extracts text from EPUB uploads. An EPUB is a zip
// archive of XHTML chapters; the package document's spine gives the
// reading order.
package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles EPUB files.
type Extractor struct{}

// New creates an EPUB extractor.
func New() *Extractor {
	return &Extractor{}
}

// Supports reports whether the extractor handles the file type.
func (e *Extractor) Supports(fileType domain.FileType) bool {
	return fileType == domain.FileTypeEPUB
}

// Extract returns the chapter texts in spine order, joined with blank
// lines. Chapters that cannot be read are skipped; the whole document
// fails only when nothing is extractable.
func (e *Extractor) Extract(ctx context.Context, data []byte, _ domain.FileType) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &domain.ExtractionError{FileType: domain.FileTypeEPUB, Reason: "not a zip archive", Err: err}
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	order := spineOrder(zr, files)
	if len(order) == 0 {
		return "", &domain.ExtractionError{FileType: domain.FileTypeEPUB, Reason: "no chapter documents"}
	}

	chapters := make([]string, 0, len(order))
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		f, ok := files[name]
		if !ok {
			continue
		}
		content, err := readZipFile(f)
		if err != nil {
			logger.Debug("skipping unreadable epub entry", "entry", name, "error", err)
			continue
		}
		if text := chapterText(content); text != "" {
			chapters = append(chapters, text)
		}
	}

	if len(chapters) == 0 {
		return "", &domain.ExtractionError{FileType: domain.FileTypeEPUB, Reason: "no extractable text"}
	}
	return strings.Join(chapters, "\n\n"), nil
}

// container is the slice of META-INF/container.xml we need.
type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// packageDoc is the slice of the OPF package document we need.
type packageDoc struct {
	Manifest []manifestItem `xml:"manifest>item"`
	Spine    []spineRef     `xml:"spine>itemref"`
}

type manifestItem struct {
	ID   string `xml:"id,attr"`
	Href string `xml:"href,attr"`
}

type spineRef struct {
	IDRef string `xml:"idref,attr"`
}

// spineOrder resolves the chapter reading order from the spine.
// Archives without usable packaging fall back to every HTML entry in
// archive order.
func spineOrder(zr *zip.Reader, files map[string]*zip.File) []string {
	if opfPath := rootfilePath(files); opfPath != "" {
		if order := spineFromOPF(files, opfPath); len(order) > 0 {
			return order
		}
	}

	var order []string
	for _, f := range zr.File {
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".xhtml", ".html", ".htm":
			order = append(order, f.Name)
		}
	}
	return order
}

// rootfilePath returns the OPF location named by container.xml.
func rootfilePath(files map[string]*zip.File) string {
	f, ok := files["META-INF/container.xml"]
	if !ok {
		return ""
	}
	data, err := readZipFile(f)
	if err != nil {
		return ""
	}

	var c container
	if err := xml.Unmarshal(data, &c); err != nil || len(c.Rootfiles) == 0 {
		return ""
	}
	return c.Rootfiles[0].FullPath
}

// spineFromOPF maps spine idrefs through the manifest to entry names.
func spineFromOPF(files map[string]*zip.File, opfPath string) []string {
	f, ok := files[opfPath]
	if !ok {
		return nil
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil
	}

	var pkg packageDoc
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		hrefs[item.ID] = item.Href
	}

	base := path.Dir(opfPath)
	order := make([]string, 0, len(pkg.Spine))
	for _, ref := range pkg.Spine {
		href := hrefs[ref.IDRef]
		if href == "" {
			continue
		}
		if idx := strings.IndexByte(href, '#'); idx >= 0 {
			href = href[:idx]
		}
		// Manifest hrefs are relative to the OPF's directory.
		order = append(order, path.Join(base, href))
	}
	return order
}

// blockSelector pulls the text-bearing block elements of a chapter.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote"

// chapterText strips one XHTML chapter down to its paragraphs.
func chapterText(content []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()

	var blocks []string
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		// A nested block's text is already covered by its parent.
		if sel.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(sel.Text()), " "); text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		// No block markup; take the body wholesale.
		return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}
	return strings.Join(blocks, "\n\n")
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
