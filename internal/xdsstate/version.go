package xdsstate

import "strconv"

func formatVersion(v uint64) string {
	return strconv.FormatUint(v, 10)
}
