package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/briefdelights/briefly/pkg/config"
)

// regenerates the JSON schema embedded by pkg/config, invoked via go:generate
func main() {
	out := "schema.json"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	reflector := jsonschema.Reflector{DoNotReference: false}
	schema := reflector.Reflect(&config.Config{})

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("marshal schema: %v", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(out, data, 0o600); err != nil {
		log.Fatalf("write %s: %v", out, err)
	}
	log.Printf("[INFO] schema written to %s", out)
}
