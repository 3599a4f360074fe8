package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/franz/prms-console/internal/model"
	"github.com/tidwall/gjson"
)

// MasterDataAPI groups the /master-data endpoints
type MasterDataAPI struct {
	c *Client
}

// MasterData returns the master-data method group
func (c *Client) MasterData() MasterDataAPI {
	return MasterDataAPI{c: c}
}

// List returns one page of master rows
func (a MasterDataAPI) List(ctx context.Context, skip, limit int) (model.MasterPage, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var page model.MasterPage
	err := a.c.getJSON(ctx, "/api/v1/master-data", q, &page)
	return page, err
}

// Create adds a master row. The id is assigned by the server.
func (a MasterDataAPI) Create(ctx context.Context, row model.MasterRow) (model.MasterRow, error) {
	row.ID = 0
	var created model.MasterRow
	err := a.c.doJSON(ctx, http.MethodPost, "/api/v1/master-data", nil, row, &created)
	return created, err
}

// Update applies a partial update
func (a MasterDataAPI) Update(ctx context.Context, id int64, patch model.MasterPatch) (model.MasterRow, error) {
	var updated model.MasterRow
	err := a.c.doJSON(ctx, http.MethodPut, "/api/v1/master-data/"+strconv.FormatInt(id, 10), nil, patch, &updated)
	return updated, err
}

// Delete removes a master row
func (a MasterDataAPI) Delete(ctx context.Context, id int64) error {
	return a.c.doJSON(ctx, http.MethodDelete, "/api/v1/master-data/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// UniqueValues returns the picker lists and id/name mapping tables
func (a MasterDataAPI) UniqueValues(ctx context.Context) (model.UniqueValues, error) {
	var uv model.UniqueValues
	err := a.c.getJSON(ctx, "/api/v1/master-data/unique-values", nil, &uv)
	return uv, err
}

// Duplicates returns the server's precomputed duplicate groups. ok is false when
// the server does not provide them, in which case the caller computes its own.
func (a MasterDataAPI) Duplicates(ctx context.Context) (groups []model.DuplicateGroup, ok bool, err error) {
	resp, err := a.c.send(ctx, request{method: http.MethodGet, path: "/api/v1/master-data/duplicates"})
	if IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !gjson.GetBytes(resp.body, "duplicates").IsArray() {
		return nil, false, nil
	}

	var body model.DuplicatesResponse
	if err := decode(resp, &body); err != nil {
		return nil, false, err
	}
	return body.Duplicates, true, nil
}

// ExportXlsx downloads the master data as a spreadsheet
func (a MasterDataAPI) ExportXlsx(ctx context.Context) (Blob, error) {
	resp, err := a.c.send(ctx, request{method: http.MethodGet, path: "/api/v1/master-data/export"})
	if err != nil {
		return Blob{}, err
	}
	return blobFrom(resp, "master-data.xlsx"), nil
}

// ImportXlsx uploads a master-data spreadsheet for server-side ingestion
func (a MasterDataAPI) ImportXlsx(ctx context.Context, up Upload) (model.UploadResult, error) {
	var out model.UploadResult
	err := a.c.upload(ctx, "/api/v1/upload/master-only", up, &out)
	return out, err
}

// upload validates and posts up as multipart field "file"
func (c *Client) upload(ctx context.Context, path string, up Upload, out interface{}) error {
	if err := up.Validate(); err != nil {
		return err
	}
	body, contentType, err := up.multipartBody()
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, request{method: http.MethodPost, path: path, raw: body, contentType: contentType})
	if err != nil {
		return err
	}
	return decode(resp, out)
}
