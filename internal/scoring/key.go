package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrEmptyKey is the fatal configuration error raised before any scoring
// starts when the grading key carries no questions.
var ErrEmptyKey = errors.New("grading key has no questions")

// Keyword is one weighted rubric term. A matched keyword contributes its
// weight to the keyword signal and may surface its explanation in feedback.
type Keyword struct {
	Text        string  `json:"keyword" validate:"required"`
	Weight      float64 `json:"weight" validate:"gte=0"`
	Explanation string  `json:"explanation,omitempty"`
}

// Question is one grading-key item: the prompt, the acceptable model
// answers, an optional weighted keyword rubric and the attainable marks.
type Question struct {
	ID       string    `json:"id" validate:"required"`
	Prompt   string    `json:"question"`
	Answers  []string  `json:"answers"`
	Keywords []Keyword `json:"rubric,omitempty" validate:"dive"`
	MaxScore float64   `json:"max_marks" validate:"gte=0"`
}

// Key is the ordered grading key for a session.
type Key struct {
	Questions []Question
}

// MaxTotal sums the attainable marks over all questions.
func (k Key) MaxTotal() float64 {
	total := 0.0
	for _, q := range k.Questions {
		total += q.MaxScore
	}
	return total
}

const keySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["id", "max_marks"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "question": {"type": "string"},
      "answers": {"type": "array", "items": {"type": "string"}},
      "rubric": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["keyword"],
          "properties": {
            "keyword": {"type": "string", "minLength": 1},
            "weight": {"type": "number", "minimum": 0},
            "explanation": {"type": "string"}
          }
        }
      },
      "max_marks": {"type": "number", "minimum": 0}
    }
  }
}`

var keySchema = jsonschema.MustCompileString("gradingkey.schema.json", keySchemaJSON)

var keyValidate = validator.New(validator.WithRequiredStructEnabled())

// LoadKey parses a grading key from its JSON form, validating it against the
// schema before decoding. Keywords without an explicit weight default to 1.
func LoadKey(r io.Reader) (Key, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Key{}, fmt.Errorf("read grading key: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Key{}, fmt.Errorf("parse grading key: %w", err)
	}
	if err := keySchema.Validate(doc); err != nil {
		return Key{}, fmt.Errorf("grading key schema: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return Key{}, fmt.Errorf("decode grading key: %w", err)
	}

	key := Key{Questions: questions}
	for qi := range key.Questions {
		if err := keyValidate.Struct(key.Questions[qi]); err != nil {
			return Key{}, fmt.Errorf("grading key question %d: %w", qi, err)
		}
		for ki := range key.Questions[qi].Keywords {
			if key.Questions[qi].Keywords[ki].Weight == 0 {
				key.Questions[qi].Keywords[ki].Weight = 1.0
			}
		}
	}
	if len(key.Questions) == 0 {
		return Key{}, ErrEmptyKey
	}
	return key, nil
}

// LoadKeyFile loads a grading key from disk.
func LoadKeyFile(path string) (Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return Key{}, fmt.Errorf("open grading key: %w", err)
	}
	defer f.Close()
	return LoadKey(f)
}
