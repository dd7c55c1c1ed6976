package positioning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// #region schema
const epochSchemaURL = "epochs.schema.json"

const epochSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["epochs"],
	"properties": {
		"receiver": {"type": "string"},
		"epochs": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["week", "tow", "satellites"],
				"properties": {
					"week": {"type": "integer", "minimum": 0},
					"tow": {"type": "number", "minimum": 0, "exclusiveMaximum": 604800},
					"satellites": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["sat", "elevation_deg"],
							"properties": {
								"sat": {"type": "string", "pattern": "^[GRECJIS][0-9]{2,3}$"},
								"elevation_deg": {"type": "number", "minimum": -90, "maximum": 90},
								"snr": {"type": "number", "minimum": 0}
							}
						}
					}
				}
			}
		}
	}
}`

// #endregion schema

// #region compile

func compileEpochSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(epochSchemaURL, strings.NewReader(epochSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(epochSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// epochFile is the on-disk layout of an observation epoch file.
type epochFile struct {
	Receiver string  `json:"receiver"`
	Epochs   []Epoch `json:"epochs"`
}

func decodeEpochFile(schema *jsonschema.Schema, raw []byte) (epochFile, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return epochFile{}, err
	}
	if err := schema.Validate(payload); err != nil {
		return epochFile{}, err
	}
	var f epochFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return epochFile{}, err
	}
	return f, nil
}

// #endregion compile
