package templatepublish

import (
	"template-publisher/internal/common/validation"
	"template-publisher/internal/models"
)

// GetRecordSchema is the presence check a record must pass before anything
// is sent to Layer.
func GetRecordSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{models.FieldTemplateName, models.FieldJSON},
		Properties: map[string]validation.Property{
			models.FieldTemplateName: {
				Type:        "string",
				Description: "Layer project name",
				MinLength:   validation.IntPtr(1),
			},
			models.FieldJSON: {
				Type:        "string",
				Description: "Category and field definitions",
				MinLength:   validation.IntPtr(1),
			},
			models.FieldProjectURL: {
				Type:        "string",
				Description: "Set once the Layer project exists",
			},
			models.FieldStatus: {
				Type: "string",
			},
		},
		AdditionalProperties: true,
	}
}

// GetInputSchema validates job variables and HTTP trigger bodies. Process
// variables unrelated to the publisher are tolerated.
func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"maxRecords": {
				Type:        "integer",
				Description: "Caps the number of records selected",
				Minimum:     validation.FloatPtr(1),
			},
		},
		AdditionalProperties: true,
	}
}
