// Package typeshed ships the stub for the builtins module.
package typeshed

import _ "embed"

//go:embed builtins.pyi
var Builtins string
