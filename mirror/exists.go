package mirror

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Verify selects how strictly an existing local file must match.
type Verify int

const (
	// VerifyPresence accepts any regular file at the target path.
	VerifyPresence Verify = iota
	// VerifySize also requires the byte length to equal the remote size.
	VerifySize
	// VerifyChecksum also requires the MD5 to equal the remote md5Checksum.
	VerifyChecksum
)

// ParseVerify parses "presence", "size" or "checksum".
func ParseVerify(s string) (Verify, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "presence", "exists":
		return VerifyPresence, nil
	case "", "size":
		return VerifySize, nil
	case "checksum", "md5":
		return VerifyChecksum, nil
	}
	return VerifySize, fmt.Errorf("unknown verify level '%s'", s)
}

func (v Verify) String() string {
	switch v {
	case VerifyPresence:
		return "presence"
	case VerifySize:
		return "size"
	case VerifyChecksum:
		return "checksum"
	default:
		return "unknown"
	}
}

// Exists reports whether the local file at path already satisfies item.
// Levels degrade to what the remote metadata allows: without a size only
// presence is checked, without a checksum only the size.
func Exists(path string, item RemoteItem, level Verify) (bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fi.Mode().IsRegular() {
		return false, nil
	}
	if level == VerifyPresence || item.Size == nil {
		return true, nil
	}
	if fi.Size() != *item.Size {
		return false, nil
	}
	if level == VerifyChecksum && item.MD5Checksum != "" {
		sum, err := md5Checksum(path)
		if err != nil {
			return false, err
		}
		return strings.EqualFold(sum, item.MD5Checksum), nil
	}
	return true, nil
}

// md5Checksum returns the hex MD5 of a local file.
func md5Checksum(fileName string) (string, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return "", err
	}
	defer f.Close()
	ha := md5.New()
	if _, err := io.Copy(ha, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(ha.Sum(nil)), nil
}
