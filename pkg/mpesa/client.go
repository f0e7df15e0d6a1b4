/**
 * @description
 * This package provides a client for the Safaricom Daraja (M-Pesa) API. It covers the
 * OAuth token exchange, Lipa Na M-Pesa Online STK push, the STK status query, and the
 * wire types of the asynchronous result callback.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2: HTTP client used for all gateway calls.
 * - golang.org/x/sync/singleflight: Deduplicates concurrent token refreshes.
 */
package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	TransactionTypePayBillOnline = "CustomerPayBillOnline"
)

// TokenSource supplies access tokens for authenticated gateway calls.
type TokenSource interface {
	Acquire(ctx context.Context) (string, error)
	Invalidate()
}

// Client is a client for the Daraja STK endpoints.
type Client struct {
	http      *resty.Client
	baseURL   string
	shortcode string
	passkey   string
	tokens    TokenSource
	now       func() time.Time
}

// NewHTTPClient returns the resty client shared by the token manager and the API client.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// NewClient creates a new Daraja API client.
func NewClient(httpClient *resty.Client, baseURL, shortcode, passkey string, tokens TokenSource) *Client {
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		shortcode: shortcode,
		passkey:   passkey,
		tokens:    tokens,
		now:       time.Now,
	}
}

// STKPushRequest carries the caller-supplied part of an STK push.
type STKPushRequest struct {
	Amount           int64
	PhoneNumber      string
	CallbackURL      string
	AccountReference string
	TransactionDesc  string
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the synchronous acknowledgement of an STK push.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        Code   `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// STKQueryResponse reports the state of an earlier STK push.
type STKQueryResponse struct {
	ResponseCode        Code   `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          Code   `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// STKPush asks the gateway to prompt the customer's handset for payment.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	timestamp := Timestamp(c.now())
	payload := stkPushPayload{
		BusinessShortCode: c.shortcode,
		Password:          Password(c.shortcode, c.passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   TransactionTypePayBillOnline,
		Amount:            req.Amount,
		PartyA:            req.PhoneNumber,
		PartyB:            c.shortcode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       req.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.TransactionDesc,
	}

	var out STKPushResponse
	if err := c.post(ctx, "stk_push", stkPushPath, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// STKQuery asks the gateway for the outcome of the push identified by checkoutRequestID.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	timestamp := Timestamp(c.now())
	payload := stkQueryPayload{
		BusinessShortCode: c.shortcode,
		Password:          Password(c.shortcode, c.passkey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var out STKQueryResponse
	if err := c.post(ctx, "stk_query", stkQueryPath, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, op, path string, payload, out interface{}) error {
	token, err := c.tokens.Acquire(ctx)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.baseURL + path)
	if err != nil {
		log.Printf("level=warn component=mpesa_client op=%s msg=\"request failed\" err=%v", op, err)
		return fmt.Errorf("mpesa %s request failed: %w", op, err)
	}

	if resp.IsError() {
		if resp.StatusCode() == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		if err := json.Unmarshal(resp.Body(), apiErr); err != nil {
			log.Printf("level=warn component=mpesa_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode())
			return apiErr
		}
		log.Printf("level=warn component=mpesa_client op=%s status=%d code=%q message=%q", op, resp.StatusCode(), apiErr.Code, apiErr.Message)
		return apiErr
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
