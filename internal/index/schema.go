package index

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed dataset.schema.json
var datasetSchemaJSON []byte

const datasetSchemaURL = "https://doorslight.local/schemas/dataset.schema.json"

var (
	datasetSchemaOnce sync.Once
	datasetSchema     *jsonschema.Schema
	datasetSchemaErr  error
)

// loadDatasetSchema compiles the embedded schema on first use.
func loadDatasetSchema() (*jsonschema.Schema, error) {
	datasetSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(datasetSchemaURL, bytes.NewReader(datasetSchemaJSON)); err != nil {
			datasetSchemaErr = err
			return
		}
		datasetSchema, datasetSchemaErr = compiler.Compile(datasetSchemaURL)
	})
	return datasetSchema, datasetSchemaErr
}

// ValidateDataset checks raw snapshot JSON against the dataset schema. The
// error names the offending location.
func ValidateDataset(raw []byte) error {
	schema, err := loadDatasetSchema()
	if err != nil {
		return fmt.Errorf("failed to compile dataset schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to decode dataset: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("dataset schema validation failed: %w", err)
	}
	return nil
}
