package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// GenerateKey derives a deterministic key from parts. Each part is rendered
// with fmt.Sprint and prefixed with its byte length so ("a:b") and ("a", "b")
// stay distinct; the length-prefixed parts are joined with ":" and MD5 hex
// encoded. A single string part is returned as is.
func GenerateKey(parts ...interface{}) string {
	if len(parts) == 1 {
		if s, ok := parts[0].(string); ok {
			return s
		}
	}

	rendered := make([]string, len(parts))
	for i, part := range parts {
		s := fmt.Sprint(part)
		rendered[i] = strconv.Itoa(len(s)) + ":" + s
	}

	sum := md5.Sum([]byte(strings.Join(rendered, ":")))
	return hex.EncodeToString(sum[:])
}
