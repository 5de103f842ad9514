// ABOUTME: Static structural validation of generated Python code using the
// ABOUTME: tree-sitter grammar. Never imports or executes the code under test.
package syntax

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Diagnostic describes the first structural problem found in a piece of code.
// Line numbers are 1-based.
type Diagnostic struct {
	Message    string
	Line       int
	SourceLine string
}

// Feedback renders the diagnostic as corrective feedback for the next
// generation attempt.
func (d *Diagnostic) Feedback() string {
	if d.SourceLine == "" {
		return fmt.Sprintf("line %d: %s", d.Line, d.Message)
	}
	return fmt.Sprintf("line %d: %s\n  %s", d.Line, d.Message, strings.TrimSpace(d.SourceLine))
}

// Validator checks generated code before it is written to disk. A nil
// Diagnostic with a nil error means the code passed.
type Validator interface {
	Validate(ctx context.Context, code string) (*Diagnostic, error)
}

// PythonValidator parses code with the tree-sitter Python grammar and reports
// the first parse error or missing token.
type PythonValidator struct{}

// NewPythonValidator creates a PythonValidator.
func NewPythonValidator() *PythonValidator {
	return &PythonValidator{}
}

// Validate parses the code and returns a Diagnostic for the first ERROR or
// missing node, or nil if the tree is clean.
func (v *PythonValidator) Validate(ctx context.Context, code string) (*Diagnostic, error) {
	if strings.TrimSpace(code) == "" {
		return &Diagnostic{Message: "code is empty", Line: 1}, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	src := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	if bad := findFirstError(root); bad != nil {
		line := int(bad.StartPoint().Row) + 1
		msg := "syntax error"
		if bad.IsMissing() {
			msg = fmt.Sprintf("missing %s", bad.Type())
		}
		return &Diagnostic{
			Message:    msg,
			Line:       line,
			SourceLine: sourceLine(code, line),
		}, nil
	}

	// HasError with no locatable ERROR node still fails validation.
	return &Diagnostic{Message: "syntax error", Line: 1}, nil
}

// findFirstError walks the tree depth-first for the first ERROR or missing node.
func findFirstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := findFirstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func sourceLine(code string, line int) string {
	lines := strings.Split(code, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	return lines[line-1]
}
