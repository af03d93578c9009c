package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Placeholders replaced in every template kind.
const (
	PlaceholderName    = "{{NAME}}"
	PlaceholderOrderID = "{{ORDER_ID}}"
)

// Kind selects how a template is rendered.
type Kind string

const (
	KindText Kind = "text" // plain/HTML/Markdown, rendered by string replacement
	KindXLSX Kind = "xlsx" // spreadsheet, every string cell is rendered
)

// defaultTemplate is used when no template file is configured.
const defaultTemplate = `<!doctype html>
<html><head><meta charset="utf-8"><title>Order {{ORDER_ID}}</title></head>
<body>
<h1>Thank you, {{NAME}}!</h1>
<p>This copy was prepared for order #{{ORDER_ID}}.</p>
</body></html>
`

// TemplateGenerator renders a personalized copy of one template per order
// and stores it. It satisfies the pipeline's Generator contract.
type TemplateGenerator struct {
	Kind     Kind
	Template []byte
	Ext      string
	Store    Store
	// Timeout bounds one Generate call; zero means no bound.
	Timeout time.Duration
	Now     func() time.Time
}

// LoadTemplate reads the template at path and infers its kind from the
// extension. An empty path yields the built-in HTML template.
func LoadTemplate(path string) (Kind, []byte, string, error) {
	if strings.TrimSpace(path) == "" {
		return KindText, []byte(defaultTemplate), ".html", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", nil, "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return KindXLSX, b, ext, nil
	}
	if ext == "" {
		ext = ".txt"
	}
	return KindText, b, ext, nil
}

// NewTemplateGenerator builds a generator from a loaded template.
func NewTemplateGenerator(kind Kind, tpl []byte, ext string, store Store, timeout time.Duration) *TemplateGenerator {
	return &TemplateGenerator{
		Kind:     kind,
		Template: tpl,
		Ext:      ext,
		Store:    store,
		Timeout:  timeout,
		Now:      time.Now,
	}
}

// Generate renders the template for (orderID, customerName), stores the
// result as "<unix-millis>-order-<orderID><ext>" and returns its reference.
func (g *TemplateGenerator) Generate(ctx context.Context, orderID, customerName string) (string, error) {
	ctx, span := otel.Tracer("artifacts/TemplateGenerator").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("template.kind", string(g.Kind)),
		),
	)
	defer span.End()

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	var (
		data        []byte
		contentType string
		err         error
	)
	switch g.Kind {
	case KindXLSX:
		data, err = RenderXLSX(g.Template, orderID, customerName)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case KindText, "":
		contentType = textContentType(g.Ext)
		name := customerName
		if strings.HasPrefix(contentType, "text/html") {
			name = html.EscapeString(name)
		}
		data = RenderText(g.Template, orderID, name)
	default:
		err = fmt.Errorf("unknown template kind %q", g.Kind)
	}
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d-order-%s%s", g.Now().UnixMilli(), orderID, g.Ext)
	ref, err := g.Store.Put(ctx, name, contentType, data)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return ref, nil
}

// RenderText replaces the placeholders in a text template.
func RenderText(tpl []byte, orderID, customerName string) []byte {
	r := strings.NewReplacer(PlaceholderName, customerName, PlaceholderOrderID, orderID)
	return []byte(r.Replace(string(tpl)))
}

// RenderXLSX opens the workbook, replaces the placeholders in every string
// cell of every sheet, and returns the new workbook bytes.
func RenderXLSX(tpl []byte, orderID, customerName string) ([]byte, error) {
	if len(tpl) == 0 {
		return nil, errors.New("xlsx template is empty")
	}
	f, err := excelize.OpenReader(bytes.NewReader(tpl))
	if err != nil {
		return nil, fmt.Errorf("open xlsx template: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := strings.NewReplacer(PlaceholderName, customerName, PlaceholderOrderID, orderID)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for ri, row := range rows {
			for ci, v := range row {
				if !strings.Contains(v, "{{") {
					continue
				}
				axis, err := excelize.CoordinatesToCellName(ci+1, ri+1)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(sheet, axis, r.Replace(v)); err != nil {
					return nil, fmt.Errorf("write %s!%s: %w", sheet, axis, err)
				}
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func textContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
