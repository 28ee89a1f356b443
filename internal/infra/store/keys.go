package store

// ResponseKey composes the (identifier, fn_name) key used by the response
// log — identifier is either a node-id or a zone name (§4.1, §4.4).
func ResponseKey(identifier, fnName string) string {
	return identifier + "\x00" + fnName
}

// TotalTimeKey composes the "<fn_name>_<arch>" key used by the total-time
// log (§3, §4.5).
func TotalTimeKey(fnName, arch string) string {
	return fnName + "_" + arch
}
