package gateway

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/prms-console/internal/util"
	"github.com/gabriel-vasile/mimetype"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
	mimeZip  = "application/zip"
	mimeOLE  = "application/x-ole-storage"
)

// Upload is a spreadsheet forwarded to the backend untouched
type Upload struct {
	Filename string
	Body     []byte
}

// Blob is an opaque server-produced file (an export)
type Blob struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReadUpload loads exactly one spreadsheet from disk and checks it
func ReadUpload(paths []string) (Upload, error) {
	if len(paths) != 1 {
		return Upload{}, util.Validation("exactly one file per import, got %d", len(paths))
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		return Upload{}, fmt.Errorf("failed to read %s: %w", paths[0], err)
	}
	up := Upload{Filename: filepath.Base(paths[0]), Body: data}
	if err := up.Validate(); err != nil {
		return Upload{}, err
	}
	return up, nil
}

// Validate accepts .xlsx files that are zip containers and .xls files that are
// OLE2 containers. The content is never parsed.
func (u Upload) Validate() error {
	if len(u.Body) == 0 {
		return util.Validation("%s is empty", u.Filename)
	}

	var accept []string
	switch strings.ToLower(filepath.Ext(u.Filename)) {
	case ".xlsx":
		accept = []string{mimeXLSX, mimeZip}
	case ".xls":
		accept = []string{mimeXLS, mimeOLE}
	default:
		return util.Validation("%s: only .xlsx and .xls files can be imported", u.Filename)
	}

	detected := mimetype.Detect(u.Body)
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range accept {
			if m.Is(want) {
				return nil
			}
		}
	}
	return util.Validation("%s does not look like a spreadsheet (detected %s)", u.Filename, detected.String())
}

// ContentType is the part content type sent for the upload
func (u Upload) ContentType() string {
	if strings.EqualFold(filepath.Ext(u.Filename), ".xls") {
		return mimeXLS
	}
	return mimeXLSX
}

// multipartBody builds a form with the upload as field "file"
func (u Upload) multipartBody() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, u.Filename))
	h.Set("Content-Type", u.ContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(u.Body); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// blobFrom wraps an export reply. The filename comes from Content-Disposition
// when the server sets one.
func blobFrom(resp *response, fallback string) Blob {
	b := Blob{
		Filename:    fallback,
		ContentType: resp.header.Get("Content-Type"),
		Body:        resp.body,
	}
	if cd := resp.header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			b.Filename = filepath.Base(params["filename"])
		}
	}
	return b
}

// Save writes the blob into dir unchanged and returns the path written
func (b Blob) Save(dir string) (string, error) {
	path := filepath.Join(dir, b.Filename)
	if err := os.WriteFile(path, b.Body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
