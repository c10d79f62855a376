//go:build !unix

package store

// FreeBytes is unsupported off unix platforms; callers treat 0 with a nil
// error as "unknown" and skip the free-space check.
func FreeBytes(path string) (uint64, error) {
	return 0, nil
}
