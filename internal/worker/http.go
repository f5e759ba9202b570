package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"appauth/internal/authstate"
	"appauth/pkg/oauth"
)

// Sentinel status codes used when no HTTP status is available.
const (
	// StatusNeedsReauthorization marks a call skipped for lack of a usable token.
	StatusNeedsReauthorization = -1

	// StatusNoConnection marks a timeout or connection failure.
	StatusNoConnection = -9
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// Request is one HTTP call.
type Request struct {
	URL     string
	Method  string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is the outcome of a Request. StatusCode is StatusNoConnection
// when Err is a transport failure.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
	Err        error
}

// Do runs req on the pool.
func (p *Pool) Do(ctx context.Context, req Request) *Future[Response] {
	return Submit(ctx, p, req.Method+" "+req.URL, func(ctx context.Context) (Response, error) {
		resp := p.do(ctx, req)
		return resp, nil
	})
}

// Request runs req on the pool and delivers the response to callback.
func (p *Pool) Request(ctx context.Context, req Request, callback func(Response)) {
	Go(ctx, p, req.Method+" "+req.URL, func(ctx context.Context) (Response, error) {
		return p.do(ctx, req), nil
	}, func(resp Response, err error) {
		if err != nil {
			resp = Response{StatusCode: StatusNoConnection, Err: err}
		}
		callback(resp)
	})
}

func (p *Pool) do(ctx context.Context, req Request) Response {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Response{StatusCode: StatusNoConnection, Err: fmt.Errorf("invalid request: %w", err)}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{StatusCode: StatusNoConnection, Err: authstate.NewError(authstate.KindNetwork, "request failed", err)}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return Response{StatusCode: StatusNoConnection, Header: httpResp.Header, Err: authstate.NewError(authstate.KindNetwork, "reading response failed", err)}
	}

	return Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: string(data)}
}

// Outcome is how a resource call should be handled by its caller.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeReauthorizationRequired
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeReauthorizationRequired:
		return "reauthorization_required"
	default:
		return "error"
	}
}

// Result is the outcome of a JSON resource call.
type Result struct {
	StatusCode int
	Body       string
	JSON       map[string]interface{}
	Challenge  *oauth.Challenge
	Err        error
}

// Outcome classifies the result. A 401 from the resource server and a call
// skipped for lack of a token both require reauthorization; everything
// other than a 200 carrying a JSON object is an error.
func (r Result) Outcome() Outcome {
	switch {
	case r.StatusCode == http.StatusUnauthorized, r.StatusCode == StatusNeedsReauthorization:
		return OutcomeReauthorizationRequired
	case r.StatusCode == http.StatusOK && r.Err == nil:
		return OutcomeOK
	default:
		return OutcomeError
	}
}

// NeedsReauthorization builds the Result for a call that was not attempted
// because no usable access token exists.
func NeedsReauthorization(err error) Result {
	return Result{StatusCode: StatusNeedsReauthorization, Err: err}
}

// GetJSON performs a bearer authenticated GET of url, expecting a JSON
// object in response.
func (p *Pool) GetJSON(ctx context.Context, url, accessToken string) *Future[Result] {
	return Submit(ctx, p, "GET "+url, func(ctx context.Context) (Result, error) {
		return p.getJSON(ctx, url, accessToken), nil
	})
}

func (p *Pool) getJSON(ctx context.Context, url, accessToken string) Result {
	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("Authorization", "Bearer "+accessToken)

	resp := p.do(ctx, Request{URL: url, Method: http.MethodGet, Header: header})
	result := Result{StatusCode: resp.StatusCode, Body: resp.Body, Err: resp.Err}
	if resp.Err != nil {
		return result
	}

	if resp.StatusCode == http.StatusUnauthorized {
		result.Challenge = oauth.ChallengeFromResponse(&http.Response{StatusCode: resp.StatusCode, Header: resp.Header})
		result.Err = authstate.Errorf(authstate.KindUnexpectedHTTPStatus, "resource server rejected the access token")
		return result
	}
	if resp.StatusCode != http.StatusOK {
		result.Err = authstate.Errorf(authstate.KindUnexpectedHTTPStatus, "resource server returned status %d", resp.StatusCode).
			WithCode(fmt.Sprint(resp.StatusCode))
		return result
	}

	if err := json.Unmarshal([]byte(resp.Body), &result.JSON); err != nil || result.JSON == nil {
		result.Err = authstate.Errorf(authstate.KindUnexpectedHTTPStatus, "response is not a JSON object")
	}
	return result
}
