////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/valyala/fasthttp"
)

const (
	// ExpoEndpoint is the Expo push API send endpoint.
	ExpoEndpoint = "https://exp.host/--/api/v2/push/send"

	defaultExpoTimeout = 15 * time.Second
)

// expoMessage is one entry of an Expo send request.
type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

// expoTicket is the per-message result of an Expo send request.
type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// TicketError lists the tokens Expo rejected.
type TicketError struct {
	// Failed maps a token to the reason Expo gave.
	Failed map[string]string
}

// Error implements error.
func (e *TicketError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for token, reason := range e.Failed {
		parts = append(parts, token+": "+reason)
	}
	return fmt.Sprintf("%d push tickets failed: %s",
		len(e.Failed), strings.Join(parts, "; "))
}

// Expo sends notifications through the Expo push service.
type Expo struct {
	client      *fasthttp.Client
	endpoint    string
	accessToken string
	timeout     time.Duration
}

// ExpoOption configures an Expo dispatcher.
type ExpoOption func(*Expo)

// WithExpoClient replaces the HTTP client.
func WithExpoClient(c *fasthttp.Client) ExpoOption {
	return func(e *Expo) { e.client = c }
}

// WithExpoEndpoint replaces the send endpoint.
func WithExpoEndpoint(url string) ExpoOption {
	return func(e *Expo) { e.endpoint = url }
}

// WithExpoAccessToken sets the bearer token used for enhanced push security.
func WithExpoAccessToken(token string) ExpoOption {
	return func(e *Expo) { e.accessToken = token }
}

// NewExpo builds an Expo dispatcher.
func NewExpo(opts ...ExpoOption) *Expo {
	e := &Expo{
		client: &fasthttp.Client{
			Name:                "staffcomms-push",
			MaxIdleConnDuration: time.Minute,
		},
		endpoint: ExpoEndpoint,
		timeout:  defaultExpoTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send posts one request per batch of at most MaxBatch tokens. Every batch is
// attempted; rejected tickets are collected into a *TicketError.
func (e *Expo) Send(ctx context.Context, tokens []string, title, body string,
	data map[string]string) error {
	failed := make(map[string]string)
	var lastErr error
	for _, batch := range Batches(tokens, MaxBatch) {
		if err := ctx.Err(); err != nil {
			return errors.WithMessage(err, "push cancelled")
		}
		if err := e.sendBatch(ctx, batch, title, body, data, failed); err != nil {
			jww.WARN.Printf("[PUSH] Expo batch of %d failed: %+v", len(batch), err)
			lastErr = err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	if len(failed) > 0 {
		return &TicketError{Failed: failed}
	}
	return nil
}

func (e *Expo) sendBatch(ctx context.Context, batch []string, title,
	body string, data map[string]string, failed map[string]string) error {
	msgs := make([]expoMessage, len(batch))
	for i, token := range batch {
		msgs[i] = expoMessage{
			To:    token,
			Title: title,
			Body:  body,
			Data:  data,
			Sound: "default",
		}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return errors.Errorf("failed to marshal push request: %+v", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(e.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	if e.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.accessToken)
	}
	req.SetBody(payload)

	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err = e.client.DoTimeout(req, resp, timeout); err != nil {
		return errors.Errorf("failed to reach push service: %+v", err)
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return errors.Errorf("push service returned %d: %s",
			code, string(resp.Body()))
	}

	parsed := &expoResponse{}
	if err = json.Unmarshal(resp.Body(), parsed); err != nil {
		return errors.Errorf("failed to parse push response: %+v", err)
	}
	if len(parsed.Errors) > 0 {
		return errors.Errorf("push service error %s: %s",
			parsed.Errors[0].Code, parsed.Errors[0].Message)
	}

	for i, ticket := range parsed.Data {
		if ticket.Status == "ok" || i >= len(batch) {
			continue
		}
		reason := ticket.Details.Error
		if reason == "" {
			reason = ticket.Message
		}
		failed[batch[i]] = reason
	}
	jww.DEBUG.Printf("[PUSH] Expo accepted batch of %d", len(batch))
	return nil
}
