package tdkerrors

import "fmt"

// ErrorDomain names the subsystem on the peer that produced an error.
type ErrorDomain string

const (
	DomainTestServer ErrorDomain = "TESTSERVER"
	DomainCBL        ErrorDomain = "CBL"
	DomainPOSIX      ErrorDomain = "POSIX"
	DomainSQLite     ErrorDomain = "SQLITE"
	DomainFleece     ErrorDomain = "FLEECE"
)

// ErrorBody is the structured error a peer may embed in a response body
// under the "error" key.
type ErrorBody struct {
	Domain  ErrorDomain `json:"domain"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
}

// ParseErrorBody extracts an ErrorBody from a decoded response body. It
// returns nil when the body carries no error object.
func ParseErrorBody(body map[string]any) *ErrorBody {
	if body == nil {
		return nil
	}
	raw, ok := body["error"].(map[string]any)
	if !ok {
		return nil
	}
	e := &ErrorBody{}
	if d, ok := raw["domain"].(string); ok {
		e.Domain = ErrorDomain(d)
	}
	if c, ok := raw["code"].(float64); ok {
		e.Code = int(c)
	}
	if m, ok := raw["message"].(string); ok {
		e.Message = m
	}
	return e
}

func (e *ErrorBody) String() string {
	return fmt.Sprintf("%s / %d: %s", e.Domain, e.Code, e.Message)
}

// Error implements the error interface for ErrorBody.
func (e *ErrorBody) Error() string {
	return e.String()
}
