package config

import "github.com/invopop/jsonschema"

// Schema describes Server as JSON schema.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(Server))
	schema.Title = "coinrush server configuration"
	schema.Description = "Settings accepted by cmd/server. Environment variables use the COINRUSH_ prefix."
	return schema
}
