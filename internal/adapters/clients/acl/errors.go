package acl

import (
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/clients"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
)

// Rejection is a receiver's explanation of why it refused a delivery.
type Rejection struct {
	Code    string
	Message string
	Details map[string]string
}

type rejectionBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

// UnmarshalJSON accepts {"error":{...}} as well as a flat object. The nested
// form wins when both are present.
func (r *Rejection) UnmarshalJSON(data []byte) error {
	var raw struct {
		rejectionBody

		Error *rejectionBody `json:"error"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	body := raw.rejectionBody
	if raw.Error != nil && (raw.Error.Code != "" || raw.Error.Message != "") {
		body = *raw.Error
	}

	*r = Rejection(body)

	return nil
}

// ParseRejection reads a rejection from body. Bodies that are not JSON or say
// nothing useful yield nil.
func ParseRejection(body io.Reader) *Rejection {
	if body == nil {
		return nil
	}

	var r Rejection
	if err := json.NewDecoder(body).Decode(&r); err != nil || (r.Code == "" && r.Message == "") {
		return nil
	}

	return &r
}

// MapHTTPError turns a delivery outcome into a domain error. resp may be nil
// when clientErr is set. Any 2xx answer is success.
func MapHTTPError(resp *http.Response, clientErr error, receiver, operation string) error {
	switch {
	case clientErr != nil:
		return transportError(clientErr, receiver, operation)
	case resp == nil:
		return domain.NewUnavailableError(receiver, "no response received")
	case resp.StatusCode/100 == 2:
		return nil
	}

	return statusError(resp.StatusCode, ParseRejection(resp.Body), receiver, operation)
}

func transportError(err error, receiver, operation string) error {
	reason := operation + " failed: " + err.Error()

	switch {
	case errors.Is(err, clients.ErrCircuitOpen):
		reason = "circuit breaker open during " + operation
	case errors.Is(err, clients.ErrMaxRetriesExceeded):
		reason = "max retries exceeded during " + operation
	}

	return domain.NewUnavailableError(receiver, reason)
}

func statusError(status int, rej *Rejection, receiver, operation string) error {
	message := operation + " failed with status " + strconv.Itoa(status)
	if rej != nil && rej.Message != "" {
		message = rej.Message
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		if rej != nil && len(rej.Details) > 0 {
			// lowest field name, so the error is stable
			field := slices.Min(slices.Collect(maps.Keys(rej.Details)))
			return domain.NewValidationError(field, rej.Details[field])
		}

		return domain.NewValidationError("", message)
	case status == http.StatusConflict:
		return domain.NewConflictError(receiver, message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewUnavailableError(receiver, "credentials rejected: "+message)
	case status == http.StatusNotFound:
		return domain.NewUnavailableError(receiver, "endpoint not found")
	case status == http.StatusTooManyRequests:
		return domain.NewUnavailableError(receiver, "rate limit exceeded")
	case status >= http.StatusInternalServerError:
		return domain.NewUnavailableError(receiver, message)
	default:
		return domain.NewValidationError("", message)
	}
}
