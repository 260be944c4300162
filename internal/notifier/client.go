package notifier

import (
	"net"
	"net/http"
	"time"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 15 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 5 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 10 * time.Second
)

// Header names of notification requests.
const (
	HeaderSignature  = "X-Apim-Signature"
	HeaderTimestamp  = "X-Apim-Timestamp"
	HeaderDeliveryID = "X-Apim-Delivery-Id"
	HeaderEvent      = "X-Apim-Event"
)

// NewHTTPClient creates an HTTP client for webhook delivery. It does not
// follow redirects.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// signedHeaders applies the notification headers to req.
func signedHeaders(req *http.Request, signature, timestamp, deliveryID, eventType string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Apim-Notifier/1.0")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderDeliveryID, deliveryID)
	req.Header.Set(HeaderEvent, eventType)
}
