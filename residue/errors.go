package residue

import (
	"fmt"

	"github.com/snow-ghost/bindopt/core"
)

func shapeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrOracleMismatch, fmt.Sprintf(format, args...))
}
