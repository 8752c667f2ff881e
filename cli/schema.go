package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/afero"

	"github.com/opal-lang/weave/core/errors"
)

// schemaURL is the resource name the data schema is compiled under.
const schemaURL = "schema://data.json"

// compileSchema loads and compiles the JSON Schema at path. Remote $ref
// resolution is refused; only the schema file itself is available.
func compileSchema(fs afero.Fs, path string) (*jsonschema.Schema, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema %s", path)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.LoadURL = func(url string) (io.ReadCloser, error) {
		return nil, errors.Errorf("$ref not allowed: %s", url)
	}
	if err := compiler.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, errors.Wrapf(err, "load schema %s", path)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, errors.Wrapf(err, "compile schema %s", path)
	}
	return schema, nil
}

// validateData checks data against the schema at path.
func validateData(fs afero.Fs, path string, data any) error {
	schema, err := compileSchema(fs, path)
	if err != nil {
		return err
	}
	doc, err := jsonValue(data)
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &CLIError{
				Type:    "schema",
				Message: "data does not match schema " + path,
				Details: strings.TrimSpace(ve.Error()),
			}
		}
		return err
	}
	return nil
}

// jsonValue re-decodes data the way the validator expects: plain JSON
// values with numbers as json.Number.
func jsonValue(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "encode data for validation")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "decode data for validation")
	}
	return doc, nil
}
