package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/franz/prms-console/internal/util"
	"github.com/tidwall/gjson"
)

// AnalyticsAPI groups the /analytics endpoints
type AnalyticsAPI struct {
	c *Client
}

// Analytics returns the analytics method group
func (c *Client) Analytics() AnalyticsAPI {
	return AnalyticsAPI{c: c}
}

// ClearCache asks the server to drop its aggregate cache
func (a AnalyticsAPI) ClearCache(ctx context.Context) error {
	return a.c.doJSON(ctx, http.MethodPost, "/api/v1/analytics/clear-cache", nil, nil, nil)
}

// Projection fetches one server-computed aggregate by endpoint name, e.g.
// "dashboard" or "pharmacy-revenue". The body is returned as-is.
func (a AnalyticsAPI) Projection(ctx context.Context, endpoint string) (json.RawMessage, error) {
	resp, err := a.c.send(ctx, request{method: http.MethodGet, path: "/api/v1/analytics/" + endpoint})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.body) {
		return nil, util.NewError(util.KindUnavailable, "analytics %s: response is not JSON", endpoint)
	}
	return json.RawMessage(resp.body), nil
}
