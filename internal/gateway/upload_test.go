package gateway

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/franz/prms-console/internal/util"
)

// fakeXLSX builds a minimal zip laid out like a workbook
func fakeXLSX(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"[Content_Types].xml", "xl/workbook.xml"} {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		f.Write([]byte("<xml/>"))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

var oleHeader = append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 504)...)

func TestUploadValidate(t *testing.T) {
	xlsx := fakeXLSX(t)

	tests := []struct {
		name    string
		upload  Upload
		wantErr bool
	}{
		{"xlsx", Upload{Filename: "rules.xlsx", Body: xlsx}, false},
		{"xlsx upper-case extension", Upload{Filename: "RULES.XLSX", Body: xlsx}, false},
		{"xls", Upload{Filename: "rules.xls", Body: oleHeader}, false},
		{"csv extension", Upload{Filename: "rules.csv", Body: []byte("a,b\n1,2\n")}, true},
		{"text posing as xlsx", Upload{Filename: "rules.xlsx", Body: []byte("pharmacy,ratio\n")}, true},
		{"xlsx renamed to xls", Upload{Filename: "rules.xls", Body: xlsx}, true},
		{"empty", Upload{Filename: "rules.xlsx"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.upload.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !util.IsKind(err, util.KindValidation) {
				t.Errorf("expected validation kind, got %v", err)
			}
		})
	}
}

func TestReadUploadExactlyOne(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.xlsx")
	b := filepath.Join(dir, "b.xlsx")
	os.WriteFile(a, fakeXLSX(t), 0o644)
	os.WriteFile(b, fakeXLSX(t), 0o644)

	if _, err := ReadUpload([]string{a, b}); !util.IsKind(err, util.KindValidation) {
		t.Errorf("two files should be a validation error, got %v", err)
	}
	if _, err := ReadUpload(nil); !util.IsKind(err, util.KindValidation) {
		t.Errorf("no files should be a validation error, got %v", err)
	}

	up, err := ReadUpload([]string{a})
	if err != nil || up.Filename != "a.xlsx" {
		t.Errorf("ReadUpload = %+v, %v", up, err)
	}
}

func TestImportForwardsFileVerbatim(t *testing.T) {
	xlsx := fakeXLSX(t)
	var got []byte
	var calls int32

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/api/v1/split-rules/import" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		if hdr.Filename != "rules.xlsx" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		got, _ = io.ReadAll(f)
		w.Write([]byte(`{"imported":3,"updated":1,"errors":["row 7: unknown pharmacy"]}`))
	})
	c := newTestClient(t, h, &memTokens{}, nil)

	res, err := c.SplitRules().ImportXlsx(context.Background(), Upload{Filename: "rules.xlsx", Body: xlsx})
	if err != nil {
		t.Fatalf("ImportXlsx: %v", err)
	}
	if res.Imported != 3 || res.Updated != 1 || len(res.Errors) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if !bytes.Equal(got, xlsx) {
		t.Error("uploaded bytes differ from the file")
	}

	// A rejected file never reaches the network.
	_, err = c.SplitRules().ImportXlsx(context.Background(), Upload{Filename: "rules.txt", Body: []byte("x")})
	if !util.IsKind(err, util.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1", calls)
	}
}
