//go:build windows

package system

// RaiseFDLimit is a no-op on windows, socket handles are not subject to an
// NOFILE-style limit
func RaiseFDLimit(want uint64) (uint64, error) {
	return want, nil
}
