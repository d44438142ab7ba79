package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docchat/internal/ai"
	"docchat/internal/model"
	"docchat/internal/vectorindex"
)

// StructuredQuery is a natural-language question rewritten into a search string
// plus an optional metadata filter.
type StructuredQuery struct {
	Query  string
	Filter *vectorindex.Filter
}

type QueryTranslator interface {
	Translate(ctx context.Context, question string, schema []model.Attribute) (*StructuredQuery, error)
}

// PassthroughTranslator searches with the question as-is and no filter.
type PassthroughTranslator struct{}

func (PassthroughTranslator) Translate(_ context.Context, question string, _ []model.Attribute) (*StructuredQuery, error) {
	return &StructuredQuery{Query: question}, nil
}

const translatorSystemPrompt = `You turn a user's question about a document into a structured search request.
Reply with a single JSON object and nothing else:
{"query": "<text to search for>", "filter": {<metadata filter or empty>}}

Filter rules:
- Only use the attributes listed by the user message.
- Comparison operators: $eq, $ne, $gt, $gte, $lt, $lte, $in.
- Logical operators: $and, $or, $not.
- Use {} when the question does not restrict any attribute.
- Do not put attribute conditions into the query text.`

// LLMTranslator asks a language model for the structured query.
type LLMTranslator struct {
	completer ai.Completer
}

func NewLLMTranslator(completer ai.Completer) *LLMTranslator {
	return &LLMTranslator{completer: completer}
}

func (t *LLMTranslator) Translate(ctx context.Context, question string, schema []model.Attribute) (*StructuredQuery, error) {
	prompt, err := buildTranslatorPrompt(question, schema)
	if err != nil {
		return nil, err
	}
	reply, err := t.completer.Complete(ctx, translatorSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := parseTranslatorReply(reply)
	if err != nil {
		return nil, fmt.Errorf("query translation failed: %w: %w", ai.ErrExternalCapability, err)
	}
	filter, err := vectorindex.ParseFilter(raw.Filter, schema)
	if err != nil {
		return nil, fmt.Errorf("query translation failed: %w: %w", ai.ErrExternalCapability, err)
	}

	query := strings.TrimSpace(raw.Query)
	if query == "" {
		query = question
	}
	return &StructuredQuery{Query: query, Filter: filter}, nil
}

func buildTranslatorPrompt(question string, schema []model.Attribute) (string, error) {
	attrs, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode attribute schema failed: %w", err)
	}
	return fmt.Sprintf("Data source: the content of one uploaded document.\nAttributes:\n%s\n\nQuestion: %s", attrs, question), nil
}

type translatorReply struct {
	Query  string         `json:"query"`
	Filter map[string]any `json:"filter"`
}

// parseTranslatorReply tolerates code fences and prose around the JSON object.
func parseTranslatorReply(reply string) (*translatorReply, error) {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in model reply")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text[start : end+1])))
	dec.UseNumber()
	var out translatorReply
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	return &out, nil
}
