package analyzer

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

const (
	analyzerName = "forbiddencalls"
	analyzerDoc  = "reports process-ending calls outside main, stdout printing outside package main " +
		"and http.Error in handler packages"
)

// Analyzer enforces how shortener code ends the process, reports problems and
// answers HTTP errors.
var Analyzer = &analysis.Analyzer{
	Name:     analyzerName,
	Doc:      analyzerDoc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// site describes where a call was found.
type site struct {
	pkg      *types.Package
	inMain   bool
	testFile bool
}

type rule struct {
	pkgPath string
	name    string
	prefix  bool
	allowed func(site) bool
	message string
}

func (r rule) matches(pkgPath, name string) bool {
	if pkgPath != r.pkgPath {
		return false
	}
	if r.prefix {
		return strings.HasPrefix(name, r.name)
	}
	return name == r.name
}

func inMainFunc(s site) bool { return s.inMain }

// Handlers map service errors through writeError, which hides 5xx details.
func outsideHandlers(s site) bool { return s.pkg.Name() != "handler" }

func printingAllowed(s site) bool { return s.pkg.Name() == "main" || s.testFile }

var rules = []rule{
	{pkgPath: "log", name: "Fatal", allowed: inMainFunc, message: "log.Fatal is forbidden outside main function"},
	{pkgPath: "os", name: "Exit", allowed: inMainFunc, message: "os.Exit is forbidden outside main function"},
	{pkgPath: "fmt", name: "Print", prefix: true, allowed: printingAllowed, message: "fmt.%s is forbidden outside package main, use the logger"},
	{pkgPath: "net/http", name: "Error", allowed: outsideHandlers, message: "http.%s is forbidden in handlers, use writeError or writeTextError"},
}

func run(pass *analysis.Pass) (interface{}, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.WithStack([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node, push bool, stack []ast.Node) bool {
		if push {
			checkCall(pass, n.(*ast.CallExpr), stack)
		}
		return true
	})

	return nil, nil
}

func checkCall(pass *analysis.Pass, call *ast.CallExpr, stack []ast.Node) {
	switch callee := typeutil.Callee(pass.TypesInfo, call).(type) {
	case *types.Builtin:
		if callee.Name() == "panic" {
			pass.Reportf(call.Pos(), "panic is forbidden")
		}
	case *types.Func:
		if callee.Pkg() == nil || callee.Type().(*types.Signature).Recv() != nil {
			return
		}
		for _, r := range rules {
			if !r.matches(callee.Pkg().Path(), callee.Name()) {
				continue
			}
			s := site{
				pkg:      pass.Pkg,
				inMain:   enclosedByMain(stack),
				testFile: strings.HasSuffix(pass.Fset.Position(call.Pos()).Filename, "_test.go"),
			}
			if !r.allowed(s) {
				if strings.Contains(r.message, "%s") {
					pass.Reportf(call.Pos(), r.message, callee.Name())
				} else {
					pass.Reportf(call.Pos(), "%s", r.message)
				}
			}
			return
		}
	}
}

// enclosedByMain reports whether the innermost function declaration on the
// stack is a plain func main.
func enclosedByMain(stack []ast.Node) bool {
	for i := len(stack) - 1; i >= 0; i-- {
		if decl, ok := stack[i].(*ast.FuncDecl); ok {
			return decl.Recv == nil && decl.Name.Name == "main"
		}
	}
	return false
}
