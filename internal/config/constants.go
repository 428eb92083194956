package config

import "strings"

const (
	SourceFileExt = ".py"
	StubFileExt   = ".pyi"
	PackageInit   = "__init__"
)

// SourceFileExtensions are all recognized source file extensions, stub first.
var SourceFileExtensions = []string{StubFileExt, SourceFileExt}

// HasSourceExt reports whether path names an implementation or stub file.
func HasSourceExt(path string) bool {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// TrimSourceExt removes a recognized source extension from name.
func TrimSourceExt(name string) string {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// Evaluator ceilings. Exceeding one degrades the result to Unknown.
const (
	// MaxTypeRecursionDepth bounds alias expansion, nested union/literal
	// expansion and the in-flight evaluation stack.
	MaxTypeRecursionDepth = 64
	// MaxLoopIterations bounds the fixed point over a loop back-edge.
	MaxLoopIterations = 16
	// MaxUnionSubtypes caps union width; wider unions widen to the join class.
	MaxUnionSubtypes = 64
	// MaxCodeFlowDepth bounds how far a narrowing query walks the flow graph.
	MaxCodeFlowDepth = 512
	// MaxEvaluationDepth bounds nested evaluator frames.
	MaxEvaluationDepth = 1024
)

// Memory defaults.
const (
	DefaultHighUsageThreshold = 0.9
	DefaultHeapLimitBytes     = 4 << 30
)

// Built-in names the engine refers to directly.
const (
	BuiltinsModuleName  = "builtins"
	ObjectTypeName      = "object"
	IntTypeName         = "int"
	FloatTypeName       = "float"
	StrTypeName         = "str"
	BoolTypeName        = "bool"
	NoneTypeName        = "NoneType"
	ListTypeName        = "list"
	DictTypeName        = "dict"
	TupleTypeName       = "tuple"
	TypeTypeName        = "type"
	IsInstanceFuncName  = "isinstance"
	OverloadDecorator   = "overload"
	SelfParamName       = "self"
	InitMethodName      = "__init__"
	CallMethodName      = "__call__"
	GetItemMethodName   = "__getitem__"
	IterMethodName      = "__iter__"
	NextMethodName      = "__next__"
	ConfigFileYAML      = "sable.yaml"
	ConfigFileTOML      = "sable.toml"
	DefaultServeAddress = ":7411"
)
