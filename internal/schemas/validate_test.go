package schemas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readFixture loads a file from testdata
func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

// writeSchema stores schema content in a temp file and returns its path
func writeSchema(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateBytes_Fixtures(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")

	tests := []struct {
		name      string
		fixture   string
		wantError bool
	}{
		{name: "valid document", fixture: "valid_json.json"},
		{name: "missing field", fixture: "invalid_json.json", wantError: true},
		{name: "wrong type", fixture: "type_mismatch.json", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBytes(schemaPath, readFixture(t, tt.fixture))
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			validationErr, ok := err.(*ValidationError)
			require.True(t, ok, "error should be ValidationError type")
			assert.Greater(t, len(validationErr.Errors), 0)
		})
	}
}

func TestValidateBytes_MalformedDocument(t *testing.T) {
	err := ValidateBytes(filepath.Join("testdata", "valid_schema.json"), []byte("{ invalid json }"))
	require.Error(t, err)
	var loadErr *SchemaLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestValidateBytes_ListingsSchema(t *testing.T) {
	schemaPath := ResolveSchemaPath(ListingsSchema)
	require.NotEmpty(t, schemaPath, "listings schema should be found from the package directory")

	tests := []struct {
		name      string
		data      string
		wantError bool
	}{
		{
			name: "valid batch",
			data: `[{"url": "https://jobs.acme.com/1", "title": "Backend Engineer", "company": "Acme", "skills": ["Go"]}]`,
		},
		{
			name: "empty batch",
			data: `[]`,
		},
		{
			name:      "object instead of array",
			data:      `{"url": "https://jobs.acme.com/1", "title": "Backend Engineer", "company": "Acme"}`,
			wantError: true,
		},
		{
			name:      "missing title",
			data:      `[{"url": "https://jobs.acme.com/1", "company": "Acme"}]`,
			wantError: true,
		},
		{
			name:      "bad posted date",
			data:      `[{"url": "https://jobs.acme.com/1", "title": "Backend Engineer", "company": "Acme", "posted_date": "May 1"}]`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBytes(schemaPath, []byte(tt.data))
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			_, ok := err.(*ValidationError)
			assert.True(t, ok, "expected ValidationError, got %T", err)
		})
	}
}

func TestValidateBytes_MissingSchema(t *testing.T) {
	err := ValidateBytes("testdata/nonexistent_schema.json", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolveSchemaPath_Unknown(t *testing.T) {
	assert.Empty(t, ResolveSchemaPath("schemas/does_not_exist.schema.json"))
}

func TestValidateBytes_InlineSchema(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`
	schemaPath := writeSchema(t, schemaContent)

	assert.NoError(t, ValidateBytes(schemaPath, []byte(`{"name": "test"}`)))

	err := ValidateBytes(schemaPath, []byte(`{"age": 30}`))
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "name", Message: "is required"},
			{Field: "age", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "name")
	assert.Contains(t, errorMsg, "age")
}

func TestValidateBytes_NestedFieldValidation(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["person"],
		"properties": {
			"person": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string"}
				}
			}
		}
	}`

	err := ValidateBytes(writeSchema(t, schemaContent), []byte(`{"person": {}}`))
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Greater(t, len(validationErr.Errors), 0)
	// Check that the field path includes nested field
	found := false
	for _, fieldErr := range validationErr.Errors {
		if fieldErr.Field != "" {
			found = true
			break
		}
	}
	assert.True(t, found, "should include field path in error")
}

func TestValidateBytes_ArrayValidation(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"properties": {
			"items": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1
			}
		}
	}`

	err := ValidateBytes(writeSchema(t, schemaContent), []byte(`{"items": []}`))
	require.Error(t, err)
}
