package api_helper

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/rs/zerolog"
	"github.com/securerx/go-securerx/utils"
	"github.com/ztrue/tracerr"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxResponseSize bounds how much of a response body is read. A peer chain is expected to stay well below it.
const MaxResponseSize = 64 << 20

// NodeIdHeader carries the id of the calling node. It is informative only: peers are not authenticated.
const NodeIdHeader = "X-SecureRx-Node-Id"

type ApiClient struct {
	client       *http.Client
	ApiURL       string
	ExtraHeaders []Header
	Logger       zerolog.Logger
}

// ServerError is the body of every non-2xx response of a node.
type ServerError struct {
	Code   string `json:"error_code"`
	Id     string `json:"error_id"`
	Detail string `json:"detail"`
}

type Header struct {
	Name  string
	Value string
}

// NewApiClient returns a client for the node at apiUrl. A timeout of 0 means no timeout other than the request context.
func NewApiClient(apiUrl string, timeout time.Duration, extraHeaders []Header, logger zerolog.Logger) *ApiClient {
	return &ApiClient{
		client:       &http.Client{Timeout: timeout},
		ApiURL:       strings.TrimSuffix(apiUrl, "/"),
		ExtraHeaders: extraHeaders,
		Logger:       logger,
	}
}

// MakeRequest sends requestBody to the node and returns the response body when the status is expectedStatusCode.
// Every failure is a utils.APIError. When the node answered with a ServerError body, its code is kept.
func (apiClient *ApiClient) MakeRequest(ctx context.Context, method string, url string, requestBody []byte, headers []Header, expectedStatusCode int) ([]byte, error) {
	if apiClient.client == nil {
		apiClient.client = &http.Client{}
	}
	fullUrl := apiClient.ApiURL + url
	fail := func(status int, code string, details string, raw []byte) error {
		return tracerr.Wrap(utils.APIError{Status: status, Code: code, Details: details, Method: method, Url: fullUrl, Raw: string(raw)})
	}

	var body io.Reader
	if requestBody != nil {
		body = bytes.NewReader(requestBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullUrl, body)
	if err != nil {
		return nil, fail(0, "REQUEST_ERROR", err.Error(), nil)
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, list := range [][]Header{apiClient.ExtraHeaders, headers} {
		for _, h := range list {
			req.Header.Add(h.Name, h.Value)
		}
	}

	logger := apiClient.Logger.With().Str("method", method).Str("url", fullUrl).Logger()
	logger.Debug().Msg("Calling node")
	logger.Trace().Bytes("body", requestBody).Msg("Request body")
	resp, err := apiClient.client.Do(req)
	if err != nil {
		return nil, fail(0, "NETWORK_ERROR", err.Error(), nil)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn().Err(err).Msg("Cannot close response body")
		}
	}()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fail(0, "RESPONSE_READER_ERROR", err.Error(), nil)
	}
	logger.Debug().Int("status", resp.StatusCode).Int("size", len(responseBody)).Msg("Node answered")
	logger.Trace().Bytes("body", responseBody).Msg("Response body")

	if resp.StatusCode == expectedStatusCode {
		return responseBody, nil
	}
	var serverError ServerError
	if json.Unmarshal(responseBody, &serverError) != nil || serverError.Code == "" {
		return nil, fail(resp.StatusCode, "UNKNOWN", "", responseBody)
	}
	return nil, tracerr.Wrap(utils.APIError{
		Status:  resp.StatusCode,
		Code:    serverError.Code,
		Id:      serverError.Id,
		Details: serverError.Detail,
		Method:  method,
		Url:     fullUrl,
		Raw:     string(responseBody),
	})
}

// MakeJSONRequest marshals requestPayload (if not nil), calls MakeRequest, and unmarshals the response into response (if not nil).
func (apiClient *ApiClient) MakeJSONRequest(ctx context.Context, method string, url string, requestPayload any, expectedStatusCode int, response any) error {
	var requestBody []byte
	if requestPayload != nil {
		var err error
		requestBody, err = json.Marshal(requestPayload)
		if err != nil {
			return tracerr.Wrap(err)
		}
	}
	responseBody, err := apiClient.MakeRequest(ctx, method, url, requestBody, nil, expectedStatusCode)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if response == nil {
		return nil
	}
	err = json.Unmarshal(responseBody, response)
	if err != nil {
		return tracerr.Wrap(utils.APIError{Status: expectedStatusCode, Code: "RESPONSE_DECODE_ERROR", Details: err.Error(), Method: method, Url: apiClient.ApiURL + url, Raw: string(responseBody)})
	}
	return nil
}
