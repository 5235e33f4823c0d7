//go:build tools

package flooding

import (
	_ "github.com/golang/mock/mockgen"
)
