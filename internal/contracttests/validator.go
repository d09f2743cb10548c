package contracttests

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// JSONRPCEnvelope validates JSON-RPC 2.0 envelope structure
type JSONRPCEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ValidateEnvelope validates JSON-RPC 2.0 envelope compliance
func ValidateEnvelope(data []byte) error {
	var envelope JSONRPCEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	// Check jsonrpc version
	if envelope.JSONRPC != "2.0" {
		return fmt.Errorf("jsonrpc must be '2.0', got '%s'", envelope.JSONRPC)
	}

	// Check id is present
	if envelope.ID == nil {
		return fmt.Errorf("id field is required")
	}

	// Check mutual exclusivity of result and error
	hasResult := len(envelope.Result) > 0
	hasError := len(envelope.Error) > 0

	if hasResult && hasError {
		return fmt.Errorf("both result and error cannot be present")
	}

	if !hasResult && !hasError {
		return fmt.Errorf("either result or error must be present")
	}

	if hasError {
		return ValidateErrorResponse(envelope.Error)
	}
	return nil
}

// ValidateErrorResponse validates JSON-RPC error structure
func ValidateErrorResponse(errorData json.RawMessage) error {
	var errorObj map[string]interface{}
	if err := json.Unmarshal(errorData, &errorObj); err != nil {
		return fmt.Errorf("error must be an object: %w", err)
	}

	code, hasCode := errorObj["code"]
	if !hasCode {
		return fmt.Errorf("error object must have 'code' field")
	}

	message, hasMessage := errorObj["message"]
	if !hasMessage {
		return fmt.Errorf("error object must have 'message' field")
	}

	// Validate code is numeric
	if _, ok := code.(float64); !ok {
		return fmt.Errorf("error code must be numeric")
	}

	// Validate message is string
	if _, ok := message.(string); !ok {
		return fmt.Errorf("error message must be string")
	}

	return nil
}

var delayReply = regexp.MustCompile(`^\d,-?\d+\.\d{12}$`)

// ValidateDelayReply checks a DLAY? reply: reference index, comma, seconds
// with twelve decimals
func ValidateDelayReply(line string) error {
	if !delayReply.MatchString(line) {
		return fmt.Errorf("delay reply must be 'ref,seconds' with 12 decimals, got '%s'", line)
	}
	return nil
}

// ValidateErrorCode checks a LERR? reply
func ValidateErrorCode(line string) error {
	code, err := strconv.Atoi(line)
	if err != nil {
		return fmt.Errorf("error code must be an integer, got '%s'", line)
	}
	if code < 0 {
		return fmt.Errorf("error code must not be negative, got %d", code)
	}
	return nil
}
