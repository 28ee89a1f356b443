package execclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInvokeRemoteConnectionFailure(t *testing.T) {
	c := New()
	// InvokeRemote always targets port 31112 on the given host; against
	// a host with nothing listening there, this must fail over to the
	// "failed" status rather than erroring the caller.
	res := c.InvokeRemote(context.Background(), "node-b", "127.0.0.1", "matrix-multiplication", "payload")
	if res.Status != "failed" {
		t.Fatalf("expected connection failure against non-listening port 31112, got status=%s", res.Status)
	}
	if res.TargetNode != "node-b" || res.ExecutionLocation != "remote" {
		t.Errorf("Result = %+v, want TargetNode=node-b ExecutionLocation=remote", res)
	}
}

func TestInvokeRemoteMissingAddress(t *testing.T) {
	c := New()
	res := c.InvokeRemote(context.Background(), "node-b", "", "fn", "payload")
	if res.Status != "failed" {
		t.Errorf("Status = %q, want failed", res.Status)
	}
	if res.Error == "" {
		t.Error("Error should describe the missing address")
	}
}

func TestForwardSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New()
	body, status, err := c.Forward(context.Background(), srv.URL+"/entry", map[string]string{"fn_name": "hello"})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Forward() status = %d, want 200", status)
	}
	if !strings.Contains(string(body), `"ok":true`) {
		t.Errorf("Forward() body = %s, want it to contain ok:true", body)
	}
}

func TestForwardPassesThroughErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"wrong role"}`))
	}))
	defer srv.Close()

	c := New()
	body, status, err := c.Forward(context.Background(), srv.URL+"/schedule", map[string]string{})
	if err != nil {
		t.Fatalf("Forward() error = %v, want nil (4xx is a valid response to pass through)", err)
	}
	if status != http.StatusForbidden {
		t.Errorf("Forward() status = %d, want 403", status)
	}
	if !strings.Contains(string(body), "wrong role") {
		t.Errorf("Forward() body = %s, want it to contain the error message", body)
	}
}

func TestForwardConnectionFailure(t *testing.T) {
	c := New()
	_, _, err := c.Forward(context.Background(), "http://127.0.0.1:1/entry", map[string]string{})
	if err == nil {
		t.Fatal("Forward() error = nil, want a connection failure")
	}
}
