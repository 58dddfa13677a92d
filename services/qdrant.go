package services

import (
	"github.com/pkg/errors"
	"github.com/qdrant/go-client/qdrant"
)

// NewQdrantClient connects to the qdrant gRPC endpoint.
func NewQdrantClient(host string, port int, apiKey string, useTLS bool) (*qdrant.Client, error) {
	if host == "" {
		return nil, errors.New("qdrant host is not set")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Qdrant")
	}
	return client, nil
}
