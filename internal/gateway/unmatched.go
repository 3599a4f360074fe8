package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/franz/prms-console/internal/model"
)

// UnmatchedAPI groups the /unmatched endpoints
type UnmatchedAPI struct {
	c *Client
}

// Unmatched returns the unmatched-record method group
func (c *Client) Unmatched() UnmatchedAPI {
	return UnmatchedAPI{c: c}
}

func unmatchedPath(id int64, action string) string {
	return "/api/v1/unmatched/" + strconv.FormatInt(id, 10) + "/" + action
}

// List returns unmatched records
func (a UnmatchedAPI) List(ctx context.Context) ([]model.UnmatchedRecord, error) {
	var out []model.UnmatchedRecord
	err := a.c.getJSON(ctx, "/api/v1/unmatched", nil, &out)
	return out, err
}

// Map points an unmatched record at a master pharmacy. The id is sent both in
// the body and as a query parameter, which older backends read.
func (a UnmatchedAPI) Map(ctx context.Context, id int64, masterPharmacyID string) error {
	q := url.Values{}
	q.Set("master_pharmacy_id", masterPharmacyID)
	return a.c.doJSON(ctx, http.MethodPost, unmatchedPath(id, "map"), q,
		model.MapRequest{MasterPharmacyID: masterPharmacyID}, nil)
}

// Ignore marks an unmatched record as ignored
func (a UnmatchedAPI) Ignore(ctx context.Context, id int64) error {
	return a.c.doJSON(ctx, http.MethodPost, unmatchedPath(id, "ignore"), nil, nil, nil)
}

// MasterPharmacies searches mapping targets by name. An empty query lists them all.
func (a UnmatchedAPI) MasterPharmacies(ctx context.Context, query string) ([]model.MasterPharmacy, error) {
	var q url.Values
	if query != "" {
		q = url.Values{}
		q.Set("query", query)
	}
	var out []model.MasterPharmacy
	err := a.c.getJSON(ctx, "/api/v1/unmatched/master-pharmacies", q, &out)
	return out, err
}

// ExportXlsx downloads the unmatched records as a spreadsheet
func (a UnmatchedAPI) ExportXlsx(ctx context.Context) (Blob, error) {
	resp, err := a.c.send(ctx, request{method: http.MethodGet, path: "/api/v1/unmatched/export"})
	if err != nil {
		return Blob{}, err
	}
	return blobFrom(resp, "unmatched.xlsx"), nil
}

// NewlyMappedAPI groups the /newly-mapped endpoints
type NewlyMappedAPI struct {
	c *Client
}

// NewlyMapped returns the newly-mapped method group
func (c *Client) NewlyMapped() NewlyMappedAPI {
	return NewlyMappedAPI{c: c}
}

// List returns records mapped by users
func (a NewlyMappedAPI) List(ctx context.Context) ([]model.NewlyMappedRecord, error) {
	var out []model.NewlyMappedRecord
	err := a.c.getJSON(ctx, "/api/v1/newly-mapped", nil, &out)
	return out, err
}

// Update retargets a mapping to another master pharmacy
func (a NewlyMappedAPI) Update(ctx context.Context, id int64, masterPharmacyID string) error {
	return a.c.doJSON(ctx, http.MethodPut, "/api/v1/newly-mapped/"+strconv.FormatInt(id, 10), nil,
		model.MapRequest{MasterPharmacyID: masterPharmacyID}, nil)
}

// Delete reverts a mapping. The server recreates a pending unmatched record.
func (a NewlyMappedAPI) Delete(ctx context.Context, id int64) error {
	return a.c.doJSON(ctx, http.MethodDelete, "/api/v1/newly-mapped/"+strconv.FormatInt(id, 10), nil, nil, nil)
}
