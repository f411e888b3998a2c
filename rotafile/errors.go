package rotafile

import (
	"fmt"
	"strings"
)

// errorf wrapper
func errorf(format string, args ...any) error {
	if !strings.HasPrefix(format, "rotafile: ") {
		format = "rotafile: " + format
	}
	return fmt.Errorf(format, args...)
}
