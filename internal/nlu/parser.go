package nlu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Intents the model can produce.
const (
	IntentLogExpense         = "log_expense"
	IntentLogIncome          = "log_income"
	IntentCheckBalance       = "check_balance"
	IntentListAccounts       = "list_accounts"
	IntentSearchTransactions = "search_transactions"
	IntentAskClarification   = "ask_clarification"
	IntentUnknown            = "unknown"
)

// Source records which parsing path produced a Result.
type Source string

const (
	SourceFunctionCall Source = "function_call"
	SourceJSON         Source = "json"
	SourceHeuristic    Source = "heuristic"
	SourceFallback     Source = "fallback"
)

const (
	defaultCallConfidence = 0.85
	defaultJSONConfidence = 0.5
	heuristicConfidence   = 0.8
	fallbackConfidence    = 0.3
)

// Result is a normalised classification.
type Result struct {
	Intent              string
	Entities            Entities
	Confidence          float64
	Reasoning           string
	ClarificationNeeded bool
	NextAction          Action
	Source              Source
}

// Parse turns a raw model reply into a Result. It does no I/O. Malformed
// function-call arguments fail with a KindInvalidResponse *Failure.
func Parse(raw *RawResponse) (*Result, error) {
	if raw == nil {
		return nil, &Failure{Kind: KindInvalidResponse, Err: fmt.Errorf("nil response")}
	}
	if raw.FunctionCall != nil {
		return parseFunctionCall(raw.FunctionCall)
	}
	if res, ok := parseJSONContent(raw.Content); ok {
		return res, nil
	}
	return parseProse(raw.Content), nil
}

func parseFunctionCall(fc *FunctionCall) (*Result, error) {
	args, err := decodeObject(fc.Arguments)
	if err != nil {
		return nil, &Failure{Kind: KindInvalidResponse, Err: fmt.Errorf("function %s arguments: %w", fc.Name, err)}
	}
	confidence, ok := args.Float("confidence")
	if !ok {
		confidence = defaultCallConfidence
	}
	clarify, ok := args.Bool("clarification_needed")
	if !ok {
		clarify = false
	}
	return &Result{
		Intent:              strings.TrimSpace(fc.Name),
		Entities:            args,
		Confidence:          clamp(confidence),
		Reasoning:           args.String("reasoning"),
		ClarificationNeeded: clarify,
		NextAction:          DecideNextAction(clamp(confidence), clarify),
		Source:              SourceFunctionCall,
	}, nil
}

func parseJSONContent(content string) (*Result, bool) {
	body := stripCodeFence(content)
	if !strings.HasPrefix(body, "{") {
		return nil, false
	}
	rec, err := decodeObject(body)
	if err != nil {
		return nil, false
	}

	intent := rec.String("intent")
	if intent == "" {
		intent = IntentUnknown
	}
	entities := rec.Map("entities")
	if entities == nil {
		entities = Entities{}
	}
	confidence, ok := rec.Float("confidence")
	if !ok {
		confidence = defaultJSONConfidence
	}
	clarify, ok := rec.Bool("clarification_needed")
	if !ok {
		clarify = true
	}
	return &Result{
		Intent:              intent,
		Entities:            entities,
		Confidence:          clamp(confidence),
		Reasoning:           rec.String("reasoning"),
		ClarificationNeeded: clarify,
		NextAction:          DecideNextAction(clamp(confidence), clarify),
		Source:              SourceJSON,
	}, true
}

func parseProse(content string) *Result {
	if tx, ok := ExtractTransaction(content); ok {
		intent := IntentLogExpense
		if tx.Income {
			intent = IntentLogIncome
		}
		return &Result{
			Intent: intent,
			Entities: Entities{
				"amount":      json.Number(tx.Amount.String()),
				"description": tx.Description,
				"category":    tx.Category,
				"confidence":  json.Number("0.8"),
			},
			Confidence: heuristicConfidence,
			NextAction: DecideNextAction(heuristicConfidence, false),
			Source:     SourceHeuristic,
		}
	}
	return &Result{
		Intent: IntentAskClarification,
		Entities: Entities{
			"question":    strings.TrimSpace(content),
			"missingInfo": []any{"amount"},
		},
		Confidence:          fallbackConfidence,
		ClarificationNeeded: true,
		NextAction:          ActionClarify,
		Source:              SourceFallback,
	}
}

func decodeObject(s string) (Entities, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Entities{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after arguments object")
	}
	if out == nil {
		out = map[string]any{}
	}
	return Entities(out), nil
}

// stripCodeFence removes a ``` or ```json wrapper around a JSON reply.
func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	if strings.HasPrefix(strings.ToLower(s), "json") {
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = ""
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
