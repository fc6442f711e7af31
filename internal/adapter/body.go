package adapter

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"keybridge/internal/models"
)

var ErrInvalidJSON = errors.New("invalid JSON in request body")

// BodyRewrite is the result of normalizing an OpenAI request body.
type BodyRewrite struct {
	Body          []byte
	ModelFrom     string
	ModelTo       string
	EffortRemoved bool
}

func (r BodyRewrite) ModelAliased() bool {
	return r.ModelTo != ""
}

// RewriteOpenAIBody compacts body and applies the model rules to it. Key order
// and untouched values are preserved byte for byte. Repeated keys resolve to
// their last occurrence, the one JSON decoders keep.
func RewriteOpenAIBody(body []byte, rules models.Rules) (BodyRewrite, error) {
	if !gjson.ValidBytes(body) {
		return BodyRewrite{}, ErrInvalidJSON
	}

	out := pretty.Ugly(body)
	root := gjson.ParseBytes(out)
	if root.Type == gjson.Null {
		return BodyRewrite{}, ErrInvalidJSON
	}
	result := BodyRewrite{}
	if !root.IsObject() {
		result.Body = out
		return result, nil
	}

	out, err := dropShadowedKeys(out, "model")
	if err != nil {
		return BodyRewrite{}, err
	}
	model := gjson.GetBytes(out, "model")
	if model.Type != gjson.String {
		result.Body = out
		return result, nil
	}

	name := model.String()
	if to, ok := rules.Resolve(name); ok {
		updated, err := sjson.SetBytes(out, "model", to)
		if err != nil {
			return BodyRewrite{}, fmt.Errorf("set model: %w", err)
		}
		out = updated
		result.ModelFrom, result.ModelTo = name, to
		name = to
	}

	if rules.StripsReasoningEffort(name) {
		if out, err = dropShadowedKeys(out, "reasoning"); err != nil {
			return BodyRewrite{}, err
		}
		if gjson.GetBytes(out, "reasoning").IsObject() {
			for gjson.GetBytes(out, "reasoning.effort").Exists() {
				updated, err := sjson.DeleteBytes(out, "reasoning.effort")
				if err != nil {
					return BodyRewrite{}, fmt.Errorf("delete reasoning.effort: %w", err)
				}
				if len(updated) == len(out) {
					break
				}
				out = updated
				result.EffortRemoved = true
			}
		}
	}

	result.Body = out
	return result, nil
}

// dropShadowedKeys removes every top-level occurrence of key except the last
// one. gjson and sjson address the first occurrence, so after this they see
// the value a decoder would.
func dropShadowedKeys(body []byte, key string) ([]byte, error) {
	count := 0
	gjson.ParseBytes(body).ForEach(func(k, _ gjson.Result) bool {
		if k.String() == key {
			count++
		}
		return true
	})

	for ; count > 1; count-- {
		updated, err := sjson.DeleteBytes(body, key)
		if err != nil {
			return nil, fmt.Errorf("drop repeated %s: %w", key, err)
		}
		body = updated
	}
	return body, nil
}
