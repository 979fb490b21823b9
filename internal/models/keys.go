package models

import (
	"fmt"
	"strconv"
	"strings"
)

func UploadKey(hash string, ts int64) string {
	return fmt.Sprintf("%s-%d", hash, ts)
}

// ParseUploadKey splits a stored file name such as "<hash>-<ts>.mp4" or
// "<hash>-<ts>.json" back into its hash and timestamp.
func ParseUploadKey(name string) (hash string, ts int64, ok bool) {
	stem := name
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	i := strings.LastIndexByte(stem, '-')
	if i <= 0 {
		return "", 0, false
	}
	ts, err := strconv.ParseInt(stem[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return stem[:i], ts, true
}
