package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrValidation marks a request body that failed schema validation.
var ErrValidation = errors.New("validation")

const maxBodyBytes = 64 << 10

var (
	messageSchema = jsonschema.MustCompileString("message.json", `{
		"type": "object",
		"required": ["message"],
		"properties": {
			"message": {"type": "string", "minLength": 1}
		}
	}`)

	taskSchema = jsonschema.MustCompileString("task.json", `{
		"type": "object",
		"required": ["task"],
		"properties": {
			"task": {"type": "string", "pattern": "\\S"}
		}
	}`)

	translateSchema = jsonschema.MustCompileString("translate.json", `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string", "minLength": 1},
			"lang": {"type": "string"}
		}
	}`)
)

// bindJSON validates the request body against schema and decodes it into
// dst. Failures wrap ErrValidation.
func bindJSON(c *gin.Context, schema *jsonschema.Schema, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte(`{}`)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: body is not valid JSON", ErrValidation)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describe(err))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// describe reduces a schema error to its most specific cause.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := strings.TrimPrefix(ve.InstanceLocation, "/")
	if loc == "" {
		return ve.Message
	}
	return loc + ": " + ve.Message
}

func validationFailed(c *gin.Context, err error) {
	msg := strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": msg})
}
