package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/evidence"
)

var ErrMalformedResponse = errors.New("malformed extraction response")

const extractionSchema = `{
  "type": "object",
  "properties": {
    "return_by_date":     {"type": ["string", "null"], "pattern": "^\\s*(\\d{4}-\\d{2}-\\d{2})?\\s*$"},
    "return_window_days": {"type": ["integer", "null"], "minimum": 0, "maximum": 365},
    "amount":             {"type": ["number", "null"], "minimum": 0},
    "final_sale":         {"type": ["boolean", "null"]},
    "evidence_quote":     {"type": ["string", "null"]},
    "confidence":         {"type": ["string", "null"]}
  }
}`

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

const schemaURL = "https://shopq.local/schemas/extraction.schema.json"

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(schemaURL, strings.NewReader(extractionSchema)); err != nil {
		panic(fmt.Sprintf("failed to load extraction schema: %v", err))
	}
	return c.MustCompile(schemaURL)
}

// ParseExtraction turns a provider response into an untrusted Extraction.
// Code fences and chatter around the JSON object are tolerated; anything that
// does not match the schema is rejected.
func ParseExtraction(raw string) (evidence.Extraction, json.RawMessage, error) {
	body := strings.TrimSpace(raw)
	if m := fenced.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return evidence.Extraction{}, nil, fmt.Errorf("%w: no JSON object", ErrMalformedResponse)
	}
	body = body[start : end+1]

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return evidence.Extraction{}, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return evidence.Extraction{}, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var x evidence.Extraction
	if err := json.Unmarshal([]byte(body), &x); err != nil {
		return evidence.Extraction{}, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	// zero is what a model copies from the template when it found nothing
	if x.ReturnWindowDays != nil && *x.ReturnWindowDays == 0 {
		x.ReturnWindowDays = nil
	}
	if x.Amount != nil && *x.Amount == 0 {
		x.Amount = nil
	}
	x.ReturnByDate = strings.TrimSpace(x.ReturnByDate)
	return x, json.RawMessage(body), nil
}
