package core

import (
	"context"
	"encoding/json"

	glog "github.com/goliatone/go-logger/glog"
)

// ExtractionRequest asks a structured-extraction capability to map a payload
// onto Schema. Payload and Catalog are provided for deterministic extractors
// that do not read the prompt.
type ExtractionRequest struct {
	Prompt     string
	SchemaName string
	Schema     map[string]any
	Payload    []byte
	Catalog    RepositoryCatalog
}

type StructuredExtractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (json.RawMessage, error)
}

type GenerationRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// KVStore is the namespaced key-value collaborator backing the ledger.
type KVStore interface {
	Get(ctx context.Context, namespace string, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace string, key string, value []byte) error
}

// KVReserver is implemented by stores able to insert a key only when absent.
type KVReserver interface {
	SetIfAbsent(ctx context.Context, namespace string, key string, value []byte) (bool, error)
	Delete(ctx context.Context, namespace string, key string) error
}

type TransportRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// TransportAdapter performs one HTTP exchange for the LLM and task clients.
type TransportAdapter interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
