package handlers

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/pdazone/engine/internal/gameerr"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://pdazone.dev/schemas/"

// Schema names of request bodies.
const (
	SchemaLocation = "location"
	SchemaSettle   = "settle"
	SchemaPlayer   = "player"
	SchemaZone     = "zone"
	SchemaArtifact = "artifact"
	SchemaItem     = "item"
	SchemaTrader   = "trader"
	SchemaStock    = "stock"
	SchemaQuest    = "quest"
	SchemaKill     = "kill"
	SchemaLoot     = "loot"
)

// Schemas validates request bodies against the embedded JSON schemas.
type Schemas struct {
	byName map[string]*jsonschema.Schema
}

// LoadSchemas compiles every embedded schema.
func LoadSchemas() (*Schemas, error) {
	c := jsonschema.NewCompiler()
	files, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		data, err := schemaFS.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+path.Base(f), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", f, err)
		}
	}

	s := &Schemas{byName: make(map[string]*jsonschema.Schema, len(files))}
	for _, f := range files {
		name := path.Base(f)
		compiled, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		s.byName[name[:len(name)-len(".schema.json")]] = compiled
	}
	return s, nil
}

// Decode validates body against the named schema and unmarshals it into out.
// Every failure is a validation error.
func (s *Schemas) Decode(name string, body []byte, out any) error {
	schema, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return gameerr.Validation(gameerr.CodeInvalidInput, "request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return gameerr.Validation(gameerr.CodeInvalidInput, "malformed JSON: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return gameerr.Validation(gameerr.CodeInvalidInput, "%s", validationMessage(err))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return gameerr.Validation(gameerr.CodeInvalidInput, "decoding %s: %v", name, err)
	}
	return nil
}

// validationMessage returns the deepest cause, which names the failing field.
func validationMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
