//go:build go1.22

package gosrc

import "go/types"

// unalias removes any alias chain from t.
func unalias(t types.Type) types.Type { return types.Unalias(t) }
