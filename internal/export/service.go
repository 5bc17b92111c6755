package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shadderzzz/UmmahHub/internal/thread"
)

type templateData struct {
	thread.View
	CategoryLabel string
	ExportedAt    time.Time
}

// Service renders thread views into downloadable documents.
type Service struct {
	now func() time.Time
}

func NewService() *Service {
	return &Service{now: time.Now}
}

// Export renders a thread in the requested format.
func (s *Service) Export(view thread.View, categoryLabel string, format Format) (*Result, error) {
	base := fmt.Sprintf("%s-%d", view.Category, view.Question.ID)
	switch format {
	case FormatHTML, "":
		html, err := renderThreadHTML(templateData{
			View:          view,
			CategoryLabel: categoryLabel,
			ExportedAt:    s.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return &Result{Data: []byte(html), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatJSON:
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal thread: %w", err)
		}
		return &Result{Data: data, Filename: base + ".json", MimeType: "application/json"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
