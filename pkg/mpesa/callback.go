package mpesa

import (
	"encoding/json"
	"errors"
	"strings"
)

// Metadata item names carried by a successful STK callback.
const (
	MetadataAmount        = "Amount"
	MetadataReceiptNumber = "MpesaReceiptNumber"
	MetadataPhoneNumber   = "PhoneNumber"
)

// ErrMalformedCallback is returned for bodies that are not STK callbacks.
var ErrMalformedCallback = errors.New("mpesa: malformed stk callback")

// Code is a result or response code. The gateway sends it as a number in
// callbacks and as a string in query responses.
type Code string

func (c *Code) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(strings.TrimSpace(s))
		return nil
	}
	*c = Code(raw)
	return nil
}

// IsSuccess reports whether the code is the gateway's success code "0".
func (c Code) IsSuccess() bool {
	return c == "0"
}

type CallbackEnvelope struct {
	Body struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is the asynchronous result notification of an STK push.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        Code              `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// ParseCallback decodes a webhook body into its STK callback.
func ParseCallback(body []byte) (*STKCallback, error) {
	var envelope CallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Join(ErrMalformedCallback, err)
	}
	cb := envelope.Body.STKCallback
	if cb == nil || strings.TrimSpace(cb.CheckoutRequestID) == "" || cb.ResultCode == "" {
		return nil, ErrMalformedCallback
	}
	cb.CheckoutRequestID = strings.TrimSpace(cb.CheckoutRequestID)
	return cb, nil
}

// MetadataValue scans the callback metadata for name. Numbers are returned in their
// literal JSON form; missing items return ok=false.
func (c *STKCallback) MetadataValue(name string) (string, bool) {
	if c.CallbackMetadata == nil {
		return "", false
	}
	for _, item := range c.CallbackMetadata.Item {
		if item.Name != name {
			continue
		}
		raw := strings.TrimSpace(string(item.Value))
		if raw == "" || raw == "null" {
			return "", false
		}
		if strings.HasPrefix(raw, `"`) {
			var s string
			if err := json.Unmarshal(item.Value, &s); err != nil {
				return "", false
			}
			return s, s != ""
		}
		return raw, true
	}
	return "", false
}
