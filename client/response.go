package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ohnitiel/upsql/dberr"
)

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string

	requestID string
	payload   any
	decoded   bool
}

// RequestID returns the id echoed by the service, or the one sent with
// the request when the service did not echo any.
func (r *Response) RequestID() string {
	return r.requestID
}

func (r *Response) String() string {
	return fmt.Sprintf("HTTP %d %s [request_id=%s]", r.StatusCode, r.URL, r.requestID)
}

// Payload decodes the body as JSON once.
func (r *Response) Payload() (any, error) {
	if r.decoded {
		return r.payload, nil
	}

	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, dberr.NewPayload("invalid JSON", r.StatusCode, r.URL, r.requestID, err)
	}
	r.payload, r.decoded = v, true
	return v, nil
}

// Get resolves a dotted path such as "dnsInfo.name" inside the payload.
func (r *Response) Get(path string) (any, error) {
	payload, err := r.Payload()
	if err != nil {
		return nil, err
	}

	cur := payload
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, dberr.NewPayloadPathKey(path, payload, r.requestID)
		}
		cur, ok = obj[key]
		if !ok {
			return nil, dberr.NewPayloadPathKey(path, payload, r.requestID)
		}
	}
	return cur, nil
}

func (r *Response) GetString(path string) (string, error) {
	v, err := r.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", dberr.NewPayload(fmt.Sprintf("%s is not a string", path), r.StatusCode, r.URL, r.requestID, nil)
	}
	return s, nil
}

func (r *Response) Has(path string) bool {
	v, err := r.Get(path)
	return err == nil && v != nil
}

func (r *Response) check() error {
	switch {
	case r.StatusCode >= 200 && r.StatusCode < 300:
		return nil
	case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
		return dberr.NewAuth(r.StatusCode, string(r.Body), r.requestID)
	case r.StatusCode >= 500:
		return dberr.NewInternal(r.StatusCode, string(r.Body), r.requestID)
	default:
		return dberr.NewAPI(r.StatusCode, string(r.Body), r.requestID)
	}
}
