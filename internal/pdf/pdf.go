// Package pdf loads and splits PDF artifacts with pdfcpu.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrInvalidPage is returned for a page index outside the document.
var ErrInvalidPage = errors.New("invalid page")

// Document implements render.MetadataLoader and render.PageRenderer.
// A rendered page is a single-page PDF; PDF pages scale to any width,
// so the width only travels with the page to the browser.
type Document struct{}

func New() *Document {
	api.DisableConfigDir()
	return &Document{}
}

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Load returns the number of pages in data.
func (*Document) Load(ctx context.Context, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := api.PageCount(bytes.NewReader(data), configuration())
	if err != nil {
		return 0, fmt.Errorf("pdf.Document: %w", err)
	}
	return n, nil
}

// RenderPage extracts the page at pageIndex, counted from zero.
func (d *Document) RenderPage(ctx context.Context, data []byte, pageIndex int, width int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageIndex < 0 {
		return nil, fmt.Errorf("pdf.Document: page %d: %w", pageIndex, ErrInvalidPage)
	}

	var out bytes.Buffer
	selection := []string{strconv.Itoa(pageIndex + 1)}
	if err := api.Trim(bytes.NewReader(data), &out, selection, configuration()); err != nil {
		return nil, fmt.Errorf("pdf.Document: page %d: %w", pageIndex, err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("pdf.Document: page %d: %w", pageIndex, ErrInvalidPage)
	}
	return out.Bytes(), nil
}
