package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/job-tracker/internal/schemas"
)

// readValidated reads a JSON input file and validates it against a repo schema when the schema can be found
func readValidated(path, schema string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file %s: %w", path, err)
	}

	if schemaPath := schemas.ResolveSchemaPath(schema); schemaPath != "" {
		if err := schemas.ValidateBytes(schemaPath, data); err != nil {
			return nil, fmt.Errorf("input %s is invalid: %w", path, err)
		}
	}
	return data, nil
}

// writeOutput writes v as indented JSON to path, or to stdout when path is empty
func writeOutput(path string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	out = append(out, '\n')

	if path == "" {
		_, err := os.Stdout.Write(out)
		return err
	}

	// Ensure output directory exists
	outputDir := filepath.Dir(path)
	if outputDir != "" && outputDir != "." {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
		}
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write output file %s: %w", path, err)
	}
	return nil
}
