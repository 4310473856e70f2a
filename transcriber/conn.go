package transcriber

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"time"

	"nhooyr.io/websocket"
)

// NetworkMetrics breaks down the websocket handshake.
type NetworkMetrics struct {
	DNS         time.Duration
	TCP         time.Duration
	TLS         time.Duration
	Upgrade     time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

// dial opens the websocket and records where the time went. The caller owns
// the returned connection.
func dial(ctx context.Context, endpoint string, opts *websocket.DialOptions) (*websocket.Conn, *NetworkMetrics, error) {
	metrics := &NetworkMetrics{}
	var dnsStart, tcpStart, tlsStart, wroteRequest time.Time

	trace := &httptrace.ClientTrace{
		GotConn:  func(info httptrace.GotConnInfo) { metrics.ConnReused = info.Reused },
		DNSStart: func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:  func(httptrace.DNSDoneInfo) { metrics.DNS = time.Since(dnsStart) },
		ConnectStart: func(_, _ string) {
			tcpStart = time.Now()
		},
		ConnectDone:       func(_, _ string, _ error) { metrics.TCP = time.Since(tcpStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(cs tls.ConnectionState, _ error) {
			metrics.TLS = time.Since(tlsStart)
			metrics.TLSProtocol = tlsVersionName(cs.Version)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) { wroteRequest = time.Now() },
		GotFirstResponseByte: func() {
			if !wroteRequest.IsZero() {
				metrics.Upgrade = time.Since(wroteRequest)
			}
		},
	}

	start := time.Now()
	conn, resp, err := websocket.Dial(httptrace.WithClientTrace(ctx, trace), endpoint, opts)
	metrics.Total = time.Since(start)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, metrics, fmt.Errorf("%w: %s: %w", ErrConnectFailed, resp.Status, err)
		}
		return nil, metrics, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return conn, metrics, nil
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	case 0:
		return ""
	}
	return fmt.Sprintf("0x%04x", v)
}
