package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	// defaultTimeout is the hard per-call budget of spec §4.6/§5.
	defaultTimeout = 3 * time.Second
	decisionPath   = "/v1/data/inneri/decision"
)

// HTTPClient queries an OPA-compatible PDP over HTTP, grounded on the
// original's policy.py:opa_decide contract: POST {base}/v1/data/inneri/decision
// with {"input": ...}, expecting {"result": Decision}.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	failOpen   bool
}

// NewHTTPClient builds a PDP client. failOpen selects the degradation policy
// of spec §4.6/§7: false (the default) fails closed to deny; true fails open
// to sandbox mode.
func NewHTTPClient(baseURL string, failOpen bool) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		failOpen:   failOpen,
	}
}

type decisionRequestEnvelope struct {
	Input Input `json:"input"`
}

type decisionResponseEnvelope struct {
	Result *Decision `json:"result"`
}

// Decide posts input to the PDP and returns its decision, or a synthesized
// fail-open/fail-closed decision classified by failure kind (spec §4.6:
// "opa_unavailable:<class>", "opa_no_result").
func (c *HTTPClient) Decide(ctx context.Context, input Input) Decision {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	payload, err := json.Marshal(decisionRequestEnvelope{Input: input})
	if err != nil {
		return c.unavailable("marshal_error")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+decisionPath, bytes.NewReader(payload))
	if err != nil {
		return c.unavailable("request_error")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.unavailable(classifyErr(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.unavailable(fmt.Sprintf("http_%d", resp.StatusCode))
	}

	var env decisionResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return c.unavailable("decode_error")
	}

	if env.Result == nil {
		return denyDecision("opa_no_result")
	}

	return env.Result.Normalize()
}

func (c *HTTPClient) unavailable(class string) Decision {
	if c.failOpen {
		return failOpenDecision(fmt.Sprintf("opa_unavailable_fail_open:%s", class))
	}
	return denyDecision(fmt.Sprintf("opa_unavailable:%s", class))
}

// classifyErr reduces an HTTP client error to a short class name for the
// wire reason code, mirroring the original's use of the Python exception's
// type name (type(e).__name__).
func classifyErr(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "ConnectionError"
	}
	return "RequestException"
}
