package files

import (
	"strings"

	pdfx "github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// maxPDFPages bounds extraction so one giant document cannot flood
// the model context.
const maxPDFPages = 50

// extractPDFText pulls plain text out of a PDF, page by page. Pages
// that yield no text are skipped.
func extractPDFText(path string) (string, error) {
	f, r, err := pdfx.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to open pdf")
	}
	defer func() {
		_ = f.Close()
	}()

	total := r.NumPage()
	pages := total
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var out strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		txt = strings.TrimSpace(txt)
		if txt == "" {
			continue
		}
		out.WriteString(txt)
		out.WriteString("\n\n")
	}

	text := strings.TrimSpace(out.String())
	if text == "" && total > 0 {
		return "", errors.New("no extractable text")
	}
	return text, nil
}
