package client

import (
	"context"
	"strings"

	"ohnitiel/upsql/dberr"
)

const discoveryPath = "/environments/local-api"

// GetBaseURL asks the global API endpoint for the regional API address
// that should receive queries for this token.
func GetBaseURL(ctx context.Context, apiURL, token string, opts ...RequesterOption) (string, error) {
	r, err := NewRequester(apiURL, NewTokenAuthFiller(token), opts...)
	if err != nil {
		return "", err
	}

	resp, err := r.Get(ctx, discoveryPath, nil)
	if err != nil {
		return "", err
	}

	name, err := resp.GetString("dnsInfo.name")
	if err != nil || name == "" {
		unavailable := dberr.NewAPIUnavailable(resp.URL)
		unavailable.RequestID = resp.RequestID()
		unavailable.Err = err
		return "", unavailable
	}

	if !strings.Contains(name, "://") {
		name = "https://" + name
	}
	return name, nil
}
