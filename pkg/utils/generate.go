package utils

import (
	"math/rand/v2"
	"time"
)

// maxOrderCode is the largest integer a JSON number round-trips exactly.
const maxOrderCode = 9007199254740991

// GenerateOrderCode returns a numeric payment order code.
// Format: unix millis followed by three random digits.
func GenerateOrderCode() int64 {
	code := time.Now().UnixMilli()*1000 + rand.Int64N(1000)
	return code % maxOrderCode
}
