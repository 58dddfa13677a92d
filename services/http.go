package services

import (
	"net/http"
	"sync"
	"time"
)

// DefaultHttpClient is the shared client for outbound fetches.
var DefaultHttpClient = sync.OnceValue(func() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
})
