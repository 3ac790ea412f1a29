package config

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/griddeck-config-v1.json
var configSchemaJSON string

var configSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("griddeck-config-v1.json",
		strings.NewReader(configSchemaJSON)); err != nil {
		panic(fmt.Sprintf("config schema resource: %v", err))
	}
	schema, err := compiler.Compile("griddeck-config-v1.json")
	if err != nil {
		panic(fmt.Sprintf("config schema compile: %v", err))
	}
	return schema
}

// Validate checks ranges via the embedded schema plus the cross-field
// rules the schema cannot express (unique display orders and serials).
func Validate(c *Config) error {
	doc := map[string]any{
		"bridge": map[string]any{
			"scroll_mode": c.Bridge.ScrollMode,
			"brightness":  c.Bridge.Brightness,
			"http_port":   c.Bridge.HTTPPort,
		},
		"devices": devicesDoc(c.Devices),
	}

	// jsonschema validates decoded JSON values, not Go structs
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := configSchema.Validate(decoded); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	seenOrder := make(map[int]string)
	seenSerial := make(map[string]bool)
	for _, d := range c.Devices {
		if other, dup := seenOrder[d.DisplayOrder]; dup {
			return fmt.Errorf("display_order %d assigned to both %q and %q", d.DisplayOrder, other, d.Serial)
		}
		seenOrder[d.DisplayOrder] = d.Serial
		if d.Serial != "" {
			if seenSerial[d.Serial] {
				return fmt.Errorf("duplicate device serial %q", d.Serial)
			}
			seenSerial[d.Serial] = true
		}
	}

	return nil
}

func devicesDoc(devices []DeviceConfig) []map[string]any {
	out := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		out = append(out, map[string]any{
			"serial":        d.Serial,
			"display_order": d.DisplayOrder,
			"h_offset":      d.HOffset,
		})
	}
	return out
}
