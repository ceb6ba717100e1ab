package httpapi

import "strconv"

// The sync token on the wire is just the decimal string of a payload
// version (spec §6 treats it as an opaque cursor the client echoes back
// unmodified); an empty or unparseable token means "everything".
func parseSyncToken(token string) int64 {
	if token == "" {
		return 0
	}
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func formatSyncToken(version int64) string {
	return strconv.FormatInt(version, 10)
}
