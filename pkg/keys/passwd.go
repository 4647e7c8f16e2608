package keys

import (
	"fmt"
	"os"
	"strings"
)

// isSecure reports whether fi restricts read/write/execute to the owner:
// at least one owner bit set and no group or other bits.
func isSecure(fi os.FileInfo) bool {
	perm := fi.Mode().Perm()
	return perm&0700 != 0 && perm&0077 == 0
}

// ReadPasswordFile reads a private key password from filename. The file must
// have owner-only permissions; group or world accessible secrets are
// rejected. The password is the first line of the file, extra lines are
// ignored.
func ReadPasswordFile(filename string) (string, error) {
	fi, err := os.Stat(filename)
	if err != nil {
		return "", fmt.Errorf("could not stat key passwd file %s: %v", filename, err)
	}
	if !isSecure(fi) {
		return "", fmt.Errorf("private key passwd file %s has insecure mode", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("could not open key passwd file %s: %v", filename, err)
	}

	line := string(data)
	if i := strings.IndexByte(line, '\n'); i != -1 {
		line = line[:i]
	}
	return strings.TrimSuffix(line, "\r"), nil
}
