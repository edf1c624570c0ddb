package dberr

import (
	"encoding/json"
	"errors"
	"fmt"
)

const authHint = "Authentication error, please run 'login' command to create a valid token"

// Error is the single fault type of the library. Kind selects how it renders
// and which family it belongs to; the remaining fields are filled in only
// when the kind needs them.
type Error struct {
	Kind Kind
	Msg  string

	// Response context, set for request faults.
	Status    int
	RequestID string
	URL       string
	Body      string

	// Path is the dotted payload path that could not be resolved.
	Path    string
	Payload any

	Err error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// NewAPI builds the fault for a non-success response.
func NewAPI(status int, body string, requestID string) *Error {
	return &Error{Kind: API, Status: status, Body: body, RequestID: requestID}
}

func NewAuth(status int, body string, requestID string) *Error {
	return &Error{Kind: Auth, Status: status, Body: body, RequestID: requestID}
}

func NewInternal(status int, body string, requestID string) *Error {
	return &Error{Kind: Internal, Status: status, Body: body, RequestID: requestID}
}

func NewPayload(msg string, status int, url string, requestID string, err error) *Error {
	return &Error{Kind: Payload, Msg: msg, Status: status, URL: url, RequestID: requestID, Err: err}
}

func NewPayloadPathKey(path string, payload any, requestID string) *Error {
	return &Error{Kind: PayloadPathKey, Path: path, Payload: payload, RequestID: requestID}
}

func NewPendingResultTimeout(requestID string, err error) *Error {
	return &Error{Kind: PendingResultTimeout, RequestID: requestID, Err: err}
}

func NewAPIUnavailable(url string) *Error {
	return &Error{Kind: APIUnavailable, URL: url}
}

func NewRequest(url string, err error) *Error {
	return &Error{Kind: Request, URL: url, Err: err}
}

func (e *Error) Error() string {
	switch e.Kind {
	case Auth:
		return authHint
	case API:
		return fmt.Sprintf("%s : %s [%s]", e.categoryName(), e.DetailMessage(), e.requestIDPart())
	case Internal:
		if e.Status != 0 {
			return fmt.Sprintf("Internal Error : %s [%s]", e.DetailMessage(), e.requestIDPart())
		}
	case PendingResultTimeout:
		msg := "Timeout while waiting for results to become ready"
		if e.RequestID != "" {
			msg += ", request_id=" + e.RequestID
		}
		return msg
	case PayloadPathKey:
		reqPart := ""
		if e.RequestID != "" {
			reqPart = " [request_id=" + e.RequestID + "]"
		}
		return fmt.Sprintf("Api Error%s: failed to find %s in response payload %s", reqPart, e.Path, dump(e.Payload))
	case Payload:
		msg := fmt.Sprintf("Payload err (%s): HTTP %d %s [%s]", e.Msg, e.Status, e.URL, e.requestIDPart())
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	case APIUnavailable:
		return "Failed to retrieve API address from " + e.URL
	case Request:
		msg := e.Msg
		if msg == "" {
			msg = "Failed to reach " + e.URL
		}
		if e.Err != nil {
			return msg + ": " + e.Err.Error()
		}
		return msg
	}

	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a Kind target against this fault's kind and all its ancestors,
// so errors.Is(err, dberr.Operational) holds for an Auth fault.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind.In(k)
}

// DetailMessage makes an effort to extract a clean reason from the
// response body.
func (e *Error) DetailMessage() string {
	var v any
	if err := json.Unmarshal([]byte(e.Body), &v); err != nil {
		return e.Body
	}

	switch j := v.(type) {
	case string:
		return j
	case map[string]any:
		if j["clazz"] == "ForbiddenException" && j["detailMessage"] != nil {
			return fmt.Sprint(j["detailMessage"])
		}
		if j["message"] != nil {
			return fmt.Sprint(j["message"])
		}
		if j["detailMessage"] != nil {
			return fmt.Sprint(j["detailMessage"])
		}
	}

	return e.Body
}

func (e *Error) categoryName() string {
	if e.Status == 400 {
		return "Syntax Error"
	}
	return "API Error"
}

func (e *Error) requestIDPart() string {
	if e.RequestID == "" {
		return ""
	}
	return "request_id=" + e.RequestID
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

// RequestIDOf returns the first request id found in err's chain.
func RequestIDOf(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.RequestID != "" {
			return e.RequestID
		}
		err = errors.Unwrap(err)
	}
	return ""
}

func dump(payload any) string {
	if payload == nil {
		return "null"
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}
