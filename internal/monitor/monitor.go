// Package monitor validates checkout payloads against their JSON contracts
// before they leave the process.
package monitor

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/yourorg/checkout-payments/internal/checkout"
)

//go:embed schemas/order_request.json
var orderRequestSchema []byte

// ContractMonitor validates payloads against a JSON schema.
type ContractMonitor struct {
	schemaLoader gojsonschema.JSONLoader
}

// NewContractMonitor creates a ContractMonitor from the schema file at schemaPath.
// Relative paths are resolved against the working directory.
func NewContractMonitor(schemaPath string) (*ContractMonitor, error) {
	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("error resolving schema path %s: %w", schemaPath, err)
	}
	schemaLoader := gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(abs))
	if _, err := gojsonschema.NewSchema(schemaLoader); err != nil {
		return nil, fmt.Errorf("error loading or compiling schema %s: %w", schemaPath, err)
	}
	return &ContractMonitor{schemaLoader: schemaLoader}, nil
}

// NewOrderContractMonitor creates a ContractMonitor for the order request contract.
func NewOrderContractMonitor() (*ContractMonitor, error) {
	schemaLoader := gojsonschema.NewBytesLoader(orderRequestSchema)
	if _, err := gojsonschema.NewSchema(schemaLoader); err != nil {
		return nil, fmt.Errorf("error compiling order request schema: %w", err)
	}
	return &ContractMonitor{schemaLoader: schemaLoader}, nil
}

// Validate validates body against the loaded schema.
// It returns true if valid, or false and the list of violations if invalid.
func (cm *ContractMonitor) Validate(body []byte) (bool, []string, error) {
	result, err := gojsonschema.Validate(cm.schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}

	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}

// ValidateOrder encodes req and validates it. Violations are returned as a
// *ContractError.
func (cm *ContractMonitor) ValidateOrder(req checkout.OrderRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("error encoding order request: %w", err)
	}
	valid, violations, err := cm.Validate(body)
	if err != nil {
		return err
	}
	if !valid {
		return &ContractError{Violations: violations}
	}
	return nil
}

// ContractError lists the schema violations of a payload.
type ContractError struct {
	Violations []string
}

func (e *ContractError) Error() string {
	return FormatErrors(e.Violations)
}

// FormatErrors formats validation errors into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
