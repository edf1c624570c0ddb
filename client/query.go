package client

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ohnitiel/upsql/dberr"
	"ohnitiel/upsql/query"
)

const queryPath = "/query"

type submitRequest struct {
	SQL   string `json:"sql"`
	Async bool   `json:"async"`
}

// QueryAPI submits statements over REST. It satisfies query.Submitter.
type QueryAPI struct {
	req *Requester
	log *slog.Logger
}

func NewQueryAPI(req *Requester, logger *slog.Logger) *QueryAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryAPI{req: req, log: logger}
}

func (a *QueryAPI) Submit(ctx context.Context, sql string) (query.Source, error) {
	resp, err := a.req.Post(ctx, queryPath, nil, submitRequest{SQL: sql, Async: true})
	if err != nil {
		return nil, err
	}

	a.log.DebugContext(ctx, "Query submitted", "request_id", resp.RequestID(), "status", resp.StatusCode)
	return &resultSource{req: a.req, pending: resp}, nil
}

// resultSource follows the locations handed out by the service. A 202 reply
// carries "current", the location to ask again; a page carries "next" when
// another page follows it.
type resultSource struct {
	req     *Requester
	pending *Response
	next    string
	done    bool
}

func (s *resultSource) Done() bool {
	return s.done
}

func (s *resultSource) Next(ctx context.Context, maxWait time.Duration) (query.Reply, error) {
	if s.done {
		return query.Reply{}, dberr.New(dberr.Interface, "result already exhausted")
	}

	resp := s.pending
	s.pending = nil
	if resp == nil {
		if s.next == "" {
			return query.Reply{}, dberr.New(dberr.Internal, "no location to poll for results")
		}

		params := url.Values{}
		if maxWait > 0 {
			params.Set("wait", strconv.FormatFloat(maxWait.Seconds(), 'f', 3, 64))
		}

		var err error
		resp, err = s.req.Get(ctx, s.next, params)
		if err != nil {
			return query.Reply{}, err
		}
	}

	reply := query.Reply{RequestID: resp.RequestID()}

	if resp.StatusCode == http.StatusAccepted {
		current, err := resp.GetString("current")
		if err != nil {
			return reply, err
		}
		s.next = current
		return reply, nil
	}

	page, err := query.DecodePage(resp.Body)
	if err != nil {
		return reply, dberr.NewPayload("malformed result page", resp.StatusCode, resp.URL, resp.RequestID(), err)
	}

	switch {
	case resp.Has("next"):
		next, err := resp.GetString("next")
		if err != nil {
			return reply, err
		}
		s.next = next
	case page.IsData() && page.HasNextPage != nil && *page.HasNextPage:
		payload, _ := resp.Payload()
		return reply, dberr.NewPayloadPathKey("next", payload, resp.RequestID())
	default:
		s.done = true
	}

	reply.Page = page
	return reply, nil
}
