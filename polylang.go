// Package polylang compiles a small statically-typed contract language
// into assembly for a stack-based zero-knowledge VM.
//
// The pipeline: source text -> tokens -> AST -> (contract-resolved,
// function-resolved) -> (assembly, ABI). Execution is driven through
// the prover package against an external VM; the ABI marshals host
// JSON into the VM's advice tape and re-materialises the outputs.
package polylang

import (
	stderrors "errors"

	"github.com/polybase/polylang-go/ast"
	"github.com/polybase/polylang-go/compiler"
	"github.com/polybase/polylang-go/diag"
	"github.com/polybase/polylang-go/parser"

	"github.com/polybase/polylang-go/abi"
)

// CompileTimeArg binds a function parameter at compile time.
type CompileTimeArg = compiler.CompileTimeArg

// Parse turns source text into a program tree. Errors carry spans and
// print a source excerpt.
func Parse(source string) (*ast.Program, error) {
	prog, err := parser.Parse(source)
	if err != nil {
		return nil, withSource(err, source)
	}
	return prog, nil
}

// Compile parses and lowers the named function of the named contract
// (or a free function when contractName is empty), returning the
// assembly text and the ABI.
func Compile(source, contractName, functionName string, args ...CompileTimeArg) (string, *abi.Abi, error) {
	prog, err := Parse(source)
	if err != nil {
		return "", nil, err
	}
	assembly, a, err := compiler.Compile(prog, contractName, functionName, args...)
	if err != nil {
		return "", nil, withSource(err, source)
	}
	return assembly, a, nil
}

// CompileProgram lowers an already-parsed program.
func CompileProgram(program *ast.Program, contractName, functionName string, args ...CompileTimeArg) (string, *abi.Abi, error) {
	return compiler.Compile(program, contractName, functionName, args...)
}

// ReadAuth reports whether the contract exports read access: it
// carries a @public or @read decorator.
func ReadAuth(program *ast.Program, contractName string) bool {
	for _, node := range program.Nodes {
		contract, ok := node.(*ast.Contract)
		if !ok || contract.Name != contractName {
			continue
		}
		for _, d := range contract.Decorators {
			if d.Name == "public" || d.Name == "read" {
				return true
			}
		}
	}
	return false
}

// withSource attaches the source text to diag errors so the formatter
// can print the line:col excerpt.
func withSource(err error, source string) error {
	var de *diag.Error
	if stderrors.As(err, &de) {
		return de.AddSource(source)
	}
	return err
}
