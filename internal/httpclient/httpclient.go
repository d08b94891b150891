package httpclient

import (
	"net/http"

	"github.com/hqlin/tcm-assistant/internal/config"
)

// Pooled returns a client with connection reuse tuned for the chatty
// embedding/LLM providers, so repeated calls avoid handshake latency.
func Pooled() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        config.MaxIdleConns,
			MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
			IdleConnTimeout:     config.IdleConnTimeout,
		},
	}
}
