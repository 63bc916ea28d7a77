package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestNewHTTPTransport verifies transport creation with default settings.
func TestNewHTTPTransport(t *testing.T) {
	tr := NewHTTPTransport()
	if tr.client == nil {
		t.Fatal("client is nil")
	}
	if tr.client.Timeout != DefaultTimeout {
		t.Errorf("got timeout %v, want %v", tr.client.Timeout, DefaultTimeout)
	}
}

// TestHTTPTransport_WithTimeout verifies timeout configuration.
func TestHTTPTransport_WithTimeout(t *testing.T) {
	timeout := 30 * time.Second
	tr := NewHTTPTransport(WithTimeout(timeout))

	if tr.client.Timeout != timeout {
		t.Errorf("got timeout %v, want %v", tr.client.Timeout, timeout)
	}
}

// TestHTTPTransport_WithInsecureSkipVerify verifies TLS skip verify configuration.
func TestHTTPTransport_WithInsecureSkipVerify(t *testing.T) {
	tr := NewHTTPTransport(WithInsecureSkipVerify(true))

	httpTransport, ok := tr.client.Transport.(*http.Transport)
	if !ok {
		t.Fatal("transport is not *http.Transport")
	}
	if !httpTransport.TLSClientConfig.InsecureSkipVerify {
		t.Error("InsecureSkipVerify is false, want true")
	}
}

// TestHTTPTransport_WithTLSConfig verifies the minimum TLS version is enforced.
func TestHTTPTransport_WithTLSConfig(t *testing.T) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS10} //nolint:gosec // raised by the option
	tr := NewHTTPTransport(WithTLSConfig(tlsCfg))

	httpTransport := tr.client.Transport.(*http.Transport)
	if httpTransport.TLSClientConfig != tlsCfg {
		t.Error("TLSClientConfig does not match provided config")
	}
	if tlsCfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", tlsCfg.MinVersion)
	}
}

// TestHTTPTransport_Post verifies basic request execution.
func TestHTTPTransport_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/soap+xml; charset=utf-8" {
			t.Errorf("unexpected Content-Type: %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "<request/>" {
			t.Errorf("unexpected body: %s", body)
		}
		_, _ = w.Write([]byte("<response/>"))
	}))
	defer server.Close()

	resp, err := NewHTTPTransport().Post(context.Background(), server.URL, []byte("<request/>"))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if string(resp) != "<response/>" {
		t.Errorf("got %q, want %q", resp, "<response/>")
	}
}

// TestHTTPTransport_Post_ErrorStatusWithBody verifies the body is returned
// alongside a *StatusError so a fault can be decoded.
func TestHTTPTransport_Post_ErrorStatusWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<s:Envelope>fault</s:Envelope>"))
	}))
	defer server.Close()

	resp, err := NewHTTPTransport().Post(context.Background(), server.URL, []byte("<request/>"))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", se.StatusCode)
	}
	if !strings.Contains(string(resp), "fault") {
		t.Errorf("body = %q, want the fault body", resp)
	}
	if IsError(err) {
		t.Error("status error with a body must not be a transport Error")
	}
}

// TestHTTPTransport_Post_ErrorStatusEmptyBody verifies an error status with
// no body is a plain transport Error.
func TestHTTPTransport_Post_ErrorStatusEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	resp, err := NewHTTPTransport().Post(context.Background(), server.URL, []byte("<request/>"))
	if resp != nil {
		t.Errorf("body = %q, want nil", resp)
	}
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if te.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", te.StatusCode)
	}
	if !errors.Is(err, ErrEmptyResponse) {
		t.Error("want ErrEmptyResponse")
	}
}

// TestHTTPTransport_Post_Timeout verifies a deadline surfaces as a transport Error.
func TestHTTPTransport_Post_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tr := NewHTTPTransport(WithTimeout(50 * time.Millisecond))
	_, err := tr.Post(context.Background(), server.URL, []byte("<request/>"))
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if !te.Timeout() {
		t.Errorf("Timeout() = false for %v", err)
	}
}

// TestHTTPTransport_Post_ConnectionRefused verifies dial failures are transport Errors.
func TestHTTPTransport_Post_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPTransport().Post(context.Background(), url, []byte("<request/>"))
	if !IsError(err) {
		t.Errorf("err = %v, want *Error", err)
	}
}

// TestHTTPTransport_Post_ContextCanceled verifies cancellation is honored.
func TestHTTPTransport_Post_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPTransport().Post(ctx, "http://127.0.0.1:1/", []byte("<request/>"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
