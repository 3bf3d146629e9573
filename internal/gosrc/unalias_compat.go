//go:build !go1.22

package gosrc

import "go/types"

// unalias removes any alias chain from t. types.Unalias does not exist
// before go1.22, and neither do materialized alias types, so identity is
// exact there.
func unalias(t types.Type) types.Type { return t }
