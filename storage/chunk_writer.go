package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"resumable-upload/apperr"
	"resumable-upload/model"
)

const tempSuffix = ".part"

// ChunkWriter writes chunks at their byte offset into one pre-sized temp file per session
// and publishes finished files with a single rename.
type ChunkWriter struct {
	tempDir    string
	publishDir string
}

// TempFile a temp file or publish directory found on disk
type TempFile struct {
	SessionID string
	ModTime   time.Time
}

// NewChunkWriter create chunk writer rooted at dataDir
func NewChunkWriter(dataDir string) (*ChunkWriter, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	w := &ChunkWriter{
		tempDir:    filepath.Join(dataDir, "tmp"),
		publishDir: filepath.Join(dataDir, "files"),
	}
	for _, dir := range []string{w.tempDir, w.publishDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return w, nil
}

// TempPath path of the session's temp file
func (w *ChunkWriter) TempPath(sessionID string) string {
	return filepath.Join(w.tempDir, sessionID+tempSuffix)
}

// PublishedPath final path of the session's file
func (w *ChunkWriter) PublishedPath(session *model.UploadSession) string {
	return filepath.Join(w.publishDir, session.SessionId, publishName(session.FileName))
}

// Open ensures the sparse temp file exists and is sized to TotalSize
func (w *ChunkWriter) Open(session *model.UploadSession) error {
	f, err := os.OpenFile(w.TempPath(session.SessionId), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return apperr.IO(err, "open temp file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperr.IO(err, "stat temp file")
	}
	if info.Size() == session.TotalSize {
		return nil
	}
	if err := f.Truncate(session.TotalSize); err != nil {
		return apperr.IO(err, "allocate temp file")
	}
	if err := f.Sync(); err != nil {
		return apperr.IO(err, "sync temp file")
	}
	return nil
}

// WriteChunk writes data at index*ChunkSize. The whole buffer is written and synced or the call fails.
func (w *ChunkWriter) WriteChunk(session *model.UploadSession, index int, data []byte) error {
	expected, err := session.ChunkLength(index)
	if err != nil {
		return apperr.Validation("%v", err)
	}
	if int64(len(data)) != expected {
		return apperr.Validation("chunk %d has %d bytes, expected %d", index, len(data), expected)
	}

	f, err := os.OpenFile(w.TempPath(session.SessionId), os.O_WRONLY, 0)
	if err != nil {
		return apperr.IO(err, "open temp file")
	}
	defer f.Close()

	n, err := f.WriteAt(data, session.ChunkOffset(index))
	if err != nil {
		return apperr.IO(err, "write chunk %d", index)
	}
	if n != len(data) {
		return apperr.IO(io.ErrShortWrite, "write chunk %d", index)
	}
	if err := f.Sync(); err != nil {
		return apperr.IO(err, "sync chunk %d", index)
	}
	return nil
}

// Publish moves the temp file to its final path with one rename. A repeated call after a
// successful rename returns the already-published path.
func (w *ChunkWriter) Publish(session *model.UploadSession) (string, error) {
	src := w.TempPath(session.SessionId)
	dst := w.PublishedPath(session)

	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		if info, statErr := os.Stat(dst); statErr == nil && info.Size() == session.TotalSize {
			return dst, nil
		}
		return "", apperr.IO(err, "temp file missing")
	}

	parent := filepath.Dir(dst)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", apperr.IO(err, "create publish directory")
	}
	if err := os.Rename(src, dst); err != nil {
		return "", apperr.IO(err, "publish file")
	}
	if dir, err := os.Open(parent); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return dst, nil
}

// Restore makes sure a session being reset has its temp file back. A file that was already
// published is moved back into the temp directory.
func (w *ChunkWriter) Restore(session *model.UploadSession) error {
	src := w.TempPath(session.SessionId)
	if info, err := os.Stat(src); err == nil && info.Size() == session.TotalSize {
		return nil
	}
	dst := w.PublishedPath(session)
	info, err := os.Stat(dst)
	if err != nil || info.Size() != session.TotalSize {
		return apperr.IO(os.ErrNotExist, "no data left for session %s, upload it again under a new session", session.SessionId)
	}
	if err := os.Rename(dst, src); err != nil {
		return apperr.IO(err, "restore temp file")
	}
	return nil
}

// Remove deletes the session's temp file if present
func (w *ChunkWriter) Remove(sessionID string) error {
	err := os.Remove(w.TempPath(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}

// RemovePublished deletes the session's publish directory if present
func (w *ChunkWriter) RemovePublished(sessionID string) error {
	if err := os.RemoveAll(filepath.Join(w.publishDir, sessionID)); err != nil {
		return fmt.Errorf("failed to remove published file: %w", err)
	}
	return nil
}

// ListPublishedDirs lists per-session publish directories currently on disk
func (w *ChunkWriter) ListPublishedDirs() ([]TempFile, error) {
	entries, err := os.ReadDir(w.publishDir)
	if err != nil {
		return nil, err
	}
	dirs := make([]TempFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, TempFile{SessionID: entry.Name(), ModTime: info.ModTime()})
	}
	return dirs, nil
}

// ListTempFiles lists temp files currently on disk
func (w *ChunkWriter) ListTempFiles() ([]TempFile, error) {
	entries, err := os.ReadDir(w.tempDir)
	if err != nil {
		return nil, err
	}
	files := make([]TempFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, TempFile{
			SessionID: strings.TrimSuffix(name, tempSuffix),
			ModTime:   info.ModTime(),
		})
	}
	return files, nil
}

// publishName strips directories from a client-supplied file name
func publishName(filename string) string {
	name := path.Base(path.Clean("/" + strings.ReplaceAll(filename, "\\", "/")))
	if name == "/" || name == "." || name == "" {
		return "upload.bin"
	}
	return name
}
