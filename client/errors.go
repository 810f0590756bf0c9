package client

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/internal/utils"
)

// Kind classifies a failed call. Callers switch on the kind, never on raw
// status codes.
type Kind int

const (
	KindApp Kind = iota
	KindValidation
	KindAuthentication
	KindNotFound
	KindServer
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	default:
		return "app"
	}
}

// Error is the single error type the dispatcher returns.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a dispatcher error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return asError(err, &e) && e.Kind == kind
}

func asError(err error, target **Error) bool {
	return apperrors.As(err, target)
}

// errorBody is the backend's error response: {status, message, details?}.
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindApp
	}
}

func classify(status int, body []byte) *Error {
	e := &Error{Kind: kindForStatus(status), Status: status}
	var parsed errorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		e.Message = parsed.Message
		e.Details = utils.ToStringSlice(parsed.Details)
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "no response from server", Err: err}
}

// neverSent reports whether err shows the request never left the client: a
// failed name lookup or a refused dial. Timeouts and failures on an open
// connection are excluded since the server may have acted on the request.
func neverSent(err error) bool {
	var dnsErr *net.DNSError
	if apperrors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout
	}
	var opErr *net.OpError
	return apperrors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout()
}
