package analysis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Stage reply shapes. A reply that decodes but breaks these bounds is
// treated like unparseable text, so the router tries the next provider.
const (
	codeSchema = `{
  "type": "object",
  "required": ["quality"],
  "properties": {
    "quality": {"type": "integer", "minimum": 1, "maximum": 10},
    "primary_languages": {"type": "array", "items": {"type": "string"}},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "concerns": {"type": "array", "items": {"type": "string"}}
  }
}`
	profileSchema = `{
  "type": "object",
  "required": ["seniority"],
  "properties": {
    "seniority": {"type": "string", "minLength": 1},
    "activity": {"type": "string"},
    "highlights": {"type": "array", "items": {"type": "string"}}
  }
}`
	skillsSchema = `{
  "type": "object",
  "required": ["skills"],
  "properties": {
    "skills": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "level": {"type": "string"},
          "evidence": {"type": "string"}
        }
      }
    }
  }
}`
	summarySchema = `{
  "type": "object",
  "required": ["headline", "score"],
  "properties": {
    "headline": {"type": "string", "minLength": 1},
    "overview": {"type": "string"},
    "score": {"type": "integer", "minimum": 0, "maximum": 100},
    "recommendation": {"type": "string"}
  }
}`
)

var stageSchemas = map[string]*jsonschema.Schema{
	StageCodeAnalysis: mustCompile(codeSchema),
	StageProfileScan:  mustCompile(profileSchema),
	StageSkills:       mustCompile(skillsSchema),
	StageSummary:      mustCompile(summarySchema),
}

func mustCompile(src string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		panic(fmt.Sprintf("analysis: invalid stage schema: %v", err))
	}
	return schema
}

// conform returns a check that validates a JSON span against the schema of
// stage. Stages without a schema accept anything.
func conform(stage string) func([]byte) error {
	schema, ok := stageSchemas[stage]
	if !ok {
		return nil
	}
	return func(span []byte) error {
		var data any
		if err := json.Unmarshal(span, &data); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if result := schema.Validate(data); !result.IsValid() {
			return fmt.Errorf("%w: %s", errSchema, result.Error())
		}
		return nil
	}
}

var errSchema = errors.New("reply does not match stage schema")
