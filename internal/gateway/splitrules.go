package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/util"
	"github.com/tidwall/gjson"
)

// SplitRulesAPI groups the /split-rules endpoints
type SplitRulesAPI struct {
	c *Client
}

// SplitRules returns the split-rule method group
func (c *Client) SplitRules() SplitRulesAPI {
	return SplitRulesAPI{c: c}
}

// List returns every split rule. Both a bare array and {"rules": [...]} are accepted.
func (a SplitRulesAPI) List(ctx context.Context) ([]model.SplitRule, error) {
	resp, err := a.c.send(ctx, request{method: http.MethodGet, path: "/api/v1/split-rules"})
	if err != nil {
		return nil, err
	}

	raw := gjson.ParseBytes(resp.body)
	if !raw.IsArray() {
		for _, key := range []string{"rules", "data", "split_rules"} {
			if v := raw.Get(key); v.IsArray() {
				raw = v
				break
			}
		}
	}
	if !raw.IsArray() {
		return nil, util.NewError(util.KindUnavailable, "unexpected split-rules response")
	}

	var rules []model.SplitRule
	if err := json.Unmarshal([]byte(raw.Raw), &rules); err != nil {
		return nil, util.WrapError(util.KindUnavailable, err, "unexpected split-rules response")
	}
	return rules, nil
}

// Create saves a rule. The server upserts on product_key and reports how many
// invoices it reprocessed.
func (a SplitRulesAPI) Create(ctx context.Context, rule model.SplitRuleCreate) (model.SplitRuleCreated, error) {
	var out model.SplitRuleCreated
	err := a.c.doJSON(ctx, http.MethodPost, "/api/v1/split-rules", nil, rule, &out)
	return out, err
}

// Delete removes a rule. The reply body is optional.
func (a SplitRulesAPI) Delete(ctx context.Context, id int64) (model.SplitRuleDeleted, error) {
	var out model.SplitRuleDeleted
	err := a.c.doJSON(ctx, http.MethodDelete, "/api/v1/split-rules/"+strconv.FormatInt(id, 10), nil, nil, &out)
	return out, err
}

// ImportXlsx uploads a split-rule spreadsheet
func (a SplitRulesAPI) ImportXlsx(ctx context.Context, up Upload) (model.ImportResult, error) {
	var out model.ImportResult
	err := a.c.upload(ctx, "/api/v1/split-rules/import", up, &out)
	return out, err
}

// ExportXlsx downloads every rule as a spreadsheet
func (a SplitRulesAPI) ExportXlsx(ctx context.Context) (Blob, error) {
	resp, err := a.c.send(ctx, request{method: http.MethodGet, path: "/api/v1/split-rules/export"})
	if err != nil {
		return Blob{}, err
	}
	return blobFrom(resp, "split-rules.xlsx"), nil
}
