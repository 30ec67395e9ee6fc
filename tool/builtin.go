package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Shahrukh072/ai-backend/core"
)

// maxExpressionLen caps calculator input length.
const maxExpressionLen = 100

// NewCalculator returns a tool that evaluates basic arithmetic expressions.
// Only the four operators, parentheses, unary minus and decimal literals are
// accepted. Invalid input is reported as an "Error: ..." result string so the
// model can recover within the conversation.
func NewCalculator() *FunctionTool {
	return NewFunctionTool(
		"calculator",
		"Evaluate a mathematical expression safely",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Mathematical expression to evaluate",
				},
			},
			"required":             []string{"expression"},
			"additionalProperties": false,
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			expression, _ := args["expression"].(string)
			return evaluateExpression(expression), nil
		},
	)
}

// NewCurrentTime returns a tool reporting the current date and time.
func NewCurrentTime() *FunctionTool {
	return NewCurrentTimeAt(time.Now)
}

// NewCurrentTimeAt is the clock-injectable variant of NewCurrentTime.
func NewCurrentTimeAt(now func() time.Time) *FunctionTool {
	return NewFunctionTool(
		"get_current_time",
		"Get the current date and time",
		map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return now().Format(time.RFC3339), nil
		},
	)
}

// DocumentSearcher performs a scoped similarity search over ingested documents.
// The retrieval pipeline satisfies this interface.
type DocumentSearcher interface {
	Search(ctx context.Context, query, userID, documentID string) ([]core.RetrievedChunk, error)
}

// NewDocumentSearch returns a tool that searches the documents visible to the
// given user. An empty documentID searches across all of the user's documents.
func NewDocumentSearch(searcher DocumentSearcher, userID, documentID string) *FunctionTool {
	return NewFunctionTool(
		"search_documents",
		"Search the user's documents for passages relevant to a query",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query",
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			chunks, err := searcher.Search(ctx, query, userID, documentID)
			if err != nil {
				return nil, fmt.Errorf("document search: %w", err)
			}
			if len(chunks) == 0 {
				return "No matching passages found.", nil
			}
			var sb strings.Builder
			for i, chunk := range chunks {
				if i > 0 {
					sb.WriteString("\n\n")
				}
				fmt.Fprintf(&sb, "[%d] (score %.2f) %s", i+1, chunk.SimilarityScore, chunk.Text)
			}
			return sb.String(), nil
		},
	)
}

// evaluateExpression parses and evaluates a basic arithmetic expression.
// Failures come back as "Error: ..." strings rather than Go errors.
func evaluateExpression(expression string) string {
	lowered := strings.ToLower(expression)
	if strings.Contains(expression, "**") || strings.Contains(lowered, "pow(") {
		return "Error: Power operator and function calls are not allowed"
	}
	if len(expression) > maxExpressionLen {
		return "Error: Expression too long"
	}
	for _, r := range expression {
		if !strings.ContainsRune("0123456789+-*/.() ", r) {
			return "Error: Invalid characters in expression"
		}
	}

	p := &exprParser{input: []rune(expression)}
	value, err := p.parseExpr()
	if err != nil {
		return "Error: Invalid expression syntax"
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return "Error: Invalid expression syntax"
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// exprParser is a small recursive descent parser over + - * / and parentheses.
type exprParser struct {
	input []rune
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() rune {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

// parseExpr handles addition and subtraction.
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

// parseTerm handles multiplication and division.
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

// parseFactor handles unary minus, parentheses and numeric literals.
func (p *exprParser) parseFactor() (float64, error) {
	p.skipSpaces()
	switch {
	case p.peek() == '-':
		p.pos++
		v, err := p.parseFactor()
		return -v, err
	case p.peek() == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("unbalanced parentheses")
		}
		p.pos++
		return v, nil
	default:
		return p.parseNumber()
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	return strconv.ParseFloat(string(p.input[start:p.pos]), 64)
}
