// Package execclient invokes functions on the local FaaS gateway and on
// peer agents (§4.3). Every call is synchronous with a fixed 60-second
// timeout, mirroring execution_engine.py's requests.post(..., timeout=60)
// calls exactly, including the JSON error shapes callers depend on.
package execclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/edgefaas/scheduler/internal/domain"
)

// Timeout is the fixed per-call deadline for every outbound request
// (§4.3). The original agent used the same constant for local and
// remote invocations; we do the same rather than let callers tune it
// per target.
const Timeout = 60 * time.Second

const localGatewayPort = "31112"

// Client talks to the local FaaS gateway and to peer agents over HTTP.
// One Client is shared by the whole process; http.Client already pools
// connections per host. Client implements domain.Execer.
type Client struct {
	http *http.Client
}

var _ domain.Execer = (*Client)(nil)

// New builds a Client with a connection-pooling transport sized for a
// scheduler that fans out to many small, short-lived peers.
func New() *Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{http: &http.Client{Transport: tr, Timeout: Timeout}}
}

// InvokeLocal executes fnName on the local FaaS gateway at 127.0.0.1:31112.
func (c *Client) InvokeLocal(ctx context.Context, fnName string, payload string) domain.ExecResult {
	url := fmt.Sprintf("http://127.0.0.1:%s/function/%s", localGatewayPort, fnName)
	body, err := c.post(ctx, url, payload)
	if err != nil {
		return domain.ExecResult{Error: fmt.Sprintf("local FaaS execution failed: %v", err), Status: "failed"}
	}
	return domain.ExecResult{Response: body, Status: "success"}
}

// InvokeRemote executes fnName on the FaaS gateway of a peer node,
// identified by targetID and targetAddress (§4.3). Both success and
// error results carry execution_location/target_node so the caller can
// attribute where the work actually ran.
func (c *Client) InvokeRemote(ctx context.Context, targetID, targetAddress, fnName, payload string) domain.ExecResult {
	if targetAddress == "" {
		return domain.ExecResult{Error: "invalid target node: missing address", Status: "failed"}
	}
	url := fmt.Sprintf("http://%s:%s/function/%s", targetAddress, localGatewayPort, fnName)
	body, err := c.post(ctx, url, payload)
	if err != nil {
		return domain.ExecResult{
			Error:             fmt.Sprintf("remote FaaS execution to %s failed: %v", targetID, err),
			Status:            "failed",
			ExecutionLocation: "remote",
			TargetNode:        targetID,
		}
	}
	return domain.ExecResult{
		Response:          body,
		Status:            "success",
		ExecutionLocation: "remote",
		TargetNode:        targetID,
	}
}

// Forward relays a scheduling request to a peer agent's /entry or
// /schedule endpoint, used by the router when hopping to another
// controller or zone (§4.6). req is marshaled as JSON; body is the raw
// response, left to the router to unmarshal since different endpoints
// reply with different shapes; status is the actual HTTP status code
// the peer returned.
func (c *Client) Forward(ctx context.Context, url string, req any) (body []byte, status int, err error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal forward request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build forward request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("forward to peer agent failed: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read forward response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) post(ctx context.Context, url, payload string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(payload)))
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}
