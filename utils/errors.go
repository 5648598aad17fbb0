package utils

import (
	"errors"
	"fmt"
	"strings"
)

// RxError is a coded error. errors.Is matches two RxError values on their Code alone,
// so a detailed copy still matches the declared sentinel.
type RxError struct {
	Code        string
	Description string
	Details     string
}

var declaredCodes = Set[string]{}

// NewRxError declares a sentinel error. Codes are unique across the module: declaring one twice panics.
func NewRxError(code string, description string) RxError {
	if declaredCodes.Has(code) {
		panic("Duplicate error: " + code)
	}
	declaredCodes.Add(code)
	return RxError{Code: code, Description: description}
}

func (err RxError) Error() string {
	var b strings.Builder
	b.WriteString(err.Code)
	if err.Description != "" {
		b.WriteString(" - " + err.Description)
	}
	if err.Details != "" {
		b.WriteString(" : " + err.Details)
	}
	return b.String()
}

func (err RxError) Is(target error) bool {
	var other RxError
	return errors.As(target, &other) && other.Code == err.Code
}

// AddDetails returns a copy of err carrying details. Sentinels are never modified.
func (err RxError) AddDetails(details string) RxError {
	if err.Details != "" {
		panic("Cannot re-add details to an error")
	}
	err.Details = details
	return err
}

// APIError is returned by api_helper when a call to a node fails. Status is 0 when no HTTP response was received.
type APIError struct {
	Status  int
	Url     string
	Method  string
	Code    string
	Id      string
	Details string
	Raw     string
}

func (err APIError) Error() string {
	parts := []string{fmt.Sprintf("status %d", err.Status)}
	for _, field := range [][2]string{
		{"code", err.Code},
		{"id", err.Id},
		{"details", err.Details},
		{"request", strings.TrimSpace(err.Method + " " + err.Url)},
		{"raw", err.Raw},
	} {
		if field[1] != "" {
			parts = append(parts, field[0]+" "+field[1])
		}
	}
	return "node API error: " + strings.Join(parts, "; ")
}

// Is matches on Status and Code.
func (err APIError) Is(target error) bool {
	var other APIError
	return errors.As(target, &other) && other.Status == err.Status && other.Code == err.Code
}

// SerializableError is the flat form of any error, as sent back to API clients.
type SerializableError struct {
	Status      int
	Code        string
	Id          string
	Description string
	Details     string
}

// ToSerializableError flattens err. Errors coming from another node keep their code,
// local RxError get an id prefixed with RX_, anything else becomes OTHER_ERROR.
func ToSerializableError(err error) *SerializableError {
	if err == nil {
		return nil
	}
	var apiError APIError
	if errors.As(err, &apiError) {
		return &SerializableError{
			Status:  apiError.Status,
			Code:    apiError.Code,
			Id:      apiError.Id,
			Details: fmt.Sprintf("%s; %s on %s", apiError.Details, apiError.Method, apiError.Url),
		}
	}
	var rxError RxError
	if errors.As(err, &rxError) {
		return &SerializableError{
			Code:        rxError.Code,
			Id:          "RX_" + rxError.Code,
			Description: rxError.Description,
			Details:     rxError.Details,
		}
	}
	return &SerializableError{Code: "OTHER_ERROR", Id: "RX_OTHER_ERROR", Details: err.Error()}
}
