package uploadclient

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// FileInfo identifies a source file
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// SessionID derives a stable session id from the file identity, so selecting the same
// file again resumes its session. The id is the sha256 of the RFC 8785 form of
// {filename, size, modifiedAt}.
func SessionID(info FileInfo) (string, error) {
	raw, err := json.Marshal(map[string]interface{}{
		"filename":   info.Name,
		"size":       info.Size,
		"modifiedAt": info.ModTime.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("encode file identity: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize file identity: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
