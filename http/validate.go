package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"pubclass/ml"
	"pubclass/vectorize"
)

const classifySchemaURL = "schema://classify-request.json"

// Method and model values are checked in the handler so the client gets the
// list of accepted values.
const classifySchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string"},
    "vectorization_method": {"type": "string"},
    "model_name": {"type": ["string", "null"]}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func classifyRequestSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(classifySchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(classifySchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(classifySchemaURL)
	})
	return compiledSchema, schemaErr
}

// ClassifyRequest is the body of POST /classify.
type ClassifyRequest struct {
	Text                string  `json:"text"`
	VectorizationMethod *string `json:"vectorization_method"`
	ModelName           *string `json:"model_name"`
}

// decodeClassifyRequest validates raw against the request schema and decodes
// it. Errors are returned as client messages.
func decodeClassifyRequest(raw []byte) (ClassifyRequest, error) {
	var req ClassifyRequest
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}
	schema, err := classifyRequestSchema()
	if err != nil {
		return req, err
	}
	if err := schema.Validate(inst); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

// method resolves the requested method; embeddings is the default.
func (r ClassifyRequest) method() (vectorize.Method, error) {
	if r.VectorizationMethod == nil {
		return vectorize.MethodEmbeddings, nil
	}
	return vectorize.ParseMethod(*r.VectorizationMethod)
}

// model returns "" when every model should answer.
func (r ClassifyRequest) model() (string, error) {
	if r.ModelName == nil || *r.ModelName == "" {
		return "", nil
	}
	kind, err := ml.ParseKind(*r.ModelName)
	if err != nil {
		return "", err
	}
	return string(kind), nil
}

func invalidMethodMessage() string {
	return fmt.Sprintf("Invalid vectorization method. Must be one of: %v", vectorize.Methods())
}

func invalidModelMessage() string {
	return fmt.Sprintf("Invalid model name. Must be one of: %v", ml.Kinds())
}
