package ratelimit

import (
	"fmt"
	"strconv"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func typeName(v interface{}) string { return fmt.Sprintf("%T", v) }
