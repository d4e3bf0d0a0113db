package backend

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rotisserie/eris"
)

// NewPerformance is a show submitted through the upload form. Poster is
// optional.
type NewPerformance struct {
	Artist     string
	Type       string
	Date       string
	Province   string
	City       string
	Venue      string
	Poster     io.Reader
	PosterName string
}

func (p NewPerformance) validate() error {
	switch {
	case p.Artist == "":
		return eris.New("artist is required")
	case p.Date == "":
		return eris.New("date is required")
	case p.City == "":
		return eris.New("city is required")
	}
	return nil
}

func (c *httpClient) CreatePerformance(ctx context.Context, p NewPerformance) error {
	if err := p.validate(); err != nil {
		return eris.Wrap(err, "backend: create performance")
	}

	// The form is buffered so retries can resend it.
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"artist", p.Artist},
		{"type", p.Type},
		{"date", p.Date},
		{"province", p.Province},
		{"city", p.City},
		{"venue", p.Venue},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return eris.Wrap(err, "backend: write form field")
		}
	}
	if p.Poster != nil {
		name := p.PosterName
		if name == "" {
			name = "poster"
		}
		part, err := w.CreateFormFile("poster", name)
		if err != nil {
			return eris.Wrap(err, "backend: create poster part")
		}
		if _, err := io.Copy(part, p.Poster); err != nil {
			return eris.Wrap(err, "backend: copy poster")
		}
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "backend: close form")
	}

	_, err := c.envelope(ctx, request{
		op: "create_performance", method: http.MethodPost, path: "/api/performances",
		body: buf.Bytes(), contentType: w.FormDataContentType(),
	})
	return eris.Wrapf(err, "backend: create performance for %q", p.Artist)
}
