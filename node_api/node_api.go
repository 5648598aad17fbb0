package node_api

import (
	"context"
	"github.com/rs/zerolog"
	"github.com/securerx/go-securerx/api_helper"
	"github.com/securerx/go-securerx/ledger"
	"github.com/ztrue/tracerr"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HealthResponse struct {
	Status string `json:"status"`
	NodeId string `json:"node_id"`
}

type PrescriptionRequest struct {
	IssuerId  string `json:"issuer_id"`
	SubjectId string `json:"subject_id"`
	Payload   string `json:"payload"`
}

type PrescriptionResponse struct {
	Status     string `json:"status"`
	BlockIndex uint64 `json:"block_index"`
	BlockHash  string `json:"block_hash"`
	PublicKey  string `json:"public_key"`
}

type ValidationResponse struct {
	Valid  bool   `json:"valid"`
	Height int    `json:"height"`
	Error  string `json:"error,omitempty"`
}

type ClientOptions struct {
	// Timeout applies to each request. 0 means no timeout other than the request context.
	Timeout time.Duration
	// NodeId is sent in api_helper.NodeIdHeader when not empty.
	NodeId string
	Logger zerolog.Logger
}

// ApiClient calls the HTTP API of one node.
type ApiClient struct {
	*api_helper.ApiClient
}

// NormalizeNodeUrl adds the http scheme to bare host:port addresses.
func NormalizeNodeUrl(address string) string {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	return "http://" + address
}

func NewApiClient(nodeUrl string, options *ClientOptions) *ApiClient {
	if options == nil {
		options = &ClientOptions{Logger: zerolog.Nop()}
	}
	var headers []api_helper.Header
	if options.NodeId != "" {
		headers = append(headers, api_helper.Header{Name: api_helper.NodeIdHeader, Value: options.NodeId})
	}
	logger := options.Logger.With().Str("component", "apiClient").Logger()
	return &ApiClient{api_helper.NewApiClient(NormalizeNodeUrl(nodeUrl), options.Timeout, headers, logger)}
}

func (apiClient ApiClient) Health(ctx context.Context) (*HealthResponse, error) {
	var result HealthResponse
	err := apiClient.MakeJSONRequest(ctx, "GET", "/health", nil, http.StatusOK, &result)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &result, nil
}

func (apiClient ApiClient) SubmitPrescription(ctx context.Context, request PrescriptionRequest) (*PrescriptionResponse, error) {
	var result PrescriptionResponse
	err := apiClient.MakeJSONRequest(ctx, "POST", "/prescription", request, http.StatusCreated, &result)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &result, nil
}

// GetBlocks fetches the whole chain of the node. Keys and signatures of the wrong length fail decoding.
func (apiClient ApiClient) GetBlocks(ctx context.Context) ([]ledger.Block, error) {
	var result []ledger.Block
	err := apiClient.MakeJSONRequest(ctx, "GET", "/blocks", nil, http.StatusOK, &result)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return result, nil
}

func (apiClient ApiClient) GetBlock(ctx context.Context, index uint64) (*ledger.Block, error) {
	var result ledger.Block
	err := apiClient.MakeJSONRequest(ctx, "GET", "/blocks/"+strconv.FormatUint(index, 10), nil, http.StatusOK, &result)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &result, nil
}

func (apiClient ApiClient) Validate(ctx context.Context) (*ValidationResponse, error) {
	var result ValidationResponse
	err := apiClient.MakeJSONRequest(ctx, "GET", "/chain/validate", nil, http.StatusOK, &result)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &result, nil
}
