package native

import (
	"fmt"
	"strconv"

	"github.com/daimatz/gojvm/pkg/rtdata"
)

func boolValue(b bool) rtdata.Value {
	if b {
		return rtdata.IntValue(1)
	}
	return rtdata.IntValue(0)
}

func intToString(v int32) string  { return strconv.FormatInt(int64(v), 10) }
func longToString(v int64) string { return strconv.FormatInt(v, 10) }

// indexOutOfBounds is returned as a machine error rather than a thrown
// Java exception: native shims in this module are platform bridges, not
// bytecode, so they cannot themselves raise a catchable Throwable — the
// interpreter wraps machine errors from the native boundary into an
// uncaught failure (§6).
func indexOutOfBounds(kind string, index int) error {
	return fmt.Errorf("%sIndexOutOfBoundsException: index %d", kind, index)
}
