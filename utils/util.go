package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
)

// MakeHash returns a hex encoded hash string of the given text
func MakeHash(text string) string {
	hash := sha1.New()
	hash.Write([]byte(text))
	sum := hash.Sum(nil)
	return hex.EncodeToString(sum)
}

// JoinPath joins the dir and the file
func JoinPath(dirPath string, filePath string) string {
	return filepath.Join(dirPath, filePath)
}
