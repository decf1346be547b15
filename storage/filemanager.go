package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileInfo is the metadata served by the file info endpoint.
type FileInfo struct {
	FileID    string    `json:"file_id"`
	JobID     string    `json:"job_id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FileManager keeps generated output files on local disk for a bounded
// lifetime. Files are addressed by an opaque file id; expired entries are
// swept in the background and treated as absent before the sweep catches
// them.
type FileManager struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]*fileEntry

	stop chan struct{}
	once sync.Once
}

type fileEntry struct {
	info FileInfo
	path string
}

// NewFileManager creates a file manager rooted at dir. Files expire after
// ttl; a non-positive ttl defaults to 24h.
func NewFileManager(dir string, ttl time.Duration, logger *slog.Logger) (*FileManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file cache directory %s: %w", dir, err)
	}
	return &FileManager{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		files:  make(map[string]*fileEntry),
		stop:   make(chan struct{}),
	}, nil
}

// Start launches the background sweep loop.
func (f *FileManager) Start() {
	go f.sweepLoop()
}

// Stop terminates the sweep loop.
func (f *FileManager) Stop() {
	f.once.Do(func() { close(f.stop) })
}

// Add stores data as a new managed file and returns its file id.
func (f *FileManager) Add(jobID, filename string, data []byte) (string, error) {
	fileID := uuid.New().String()
	path := filepath.Join(f.dir, fileID+filepath.Ext(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write output file for job %s: %w", jobID, err)
	}

	now := time.Now().UTC()
	f.mu.Lock()
	f.files[fileID] = &fileEntry{
		path: path,
		info: FileInfo{
			FileID:    fileID,
			JobID:     jobID,
			Filename:  filename,
			CreatedAt: now,
			ExpiresAt: now.Add(f.ttl),
		},
	}
	f.mu.Unlock()

	f.logger.Info("output file stored",
		slog.String("file_id", fileID),
		slog.String("job_id", jobID),
		slog.String("filename", filename))
	return fileID, nil
}

// Path resolves a file id to its on-disk path. Expired or unknown ids
// return ErrNotFound.
func (f *FileManager) Path(fileID string) (string, error) {
	entry, err := f.lookup(fileID)
	if err != nil {
		return "", err
	}
	return entry.path, nil
}

// Info returns the metadata for a file id.
func (f *FileManager) Info(fileID string) (FileInfo, error) {
	entry, err := f.lookup(fileID)
	if err != nil {
		return FileInfo{}, err
	}
	return entry.info, nil
}

func (f *FileManager) lookup(fileID string) (*fileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.files[fileID]
	if !ok || time.Now().After(entry.info.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return entry, nil
}

func (f *FileManager) sweepLoop() {
	interval := f.ttl / 4
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.sweep(time.Now())
		case <-f.stop:
			return
		}
	}
}

// sweep removes expired entries and their files.
func (f *FileManager) sweep(now time.Time) {
	f.mu.Lock()
	var expired []*fileEntry
	for id, entry := range f.files {
		if now.After(entry.info.ExpiresAt) {
			expired = append(expired, entry)
			delete(f.files, id)
		}
	}
	f.mu.Unlock()

	for _, entry := range expired {
		if err := os.Remove(entry.path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("remove expired file",
				slog.String("file_id", entry.info.FileID),
				slog.String("error", err.Error()))
			continue
		}
		f.logger.Debug("expired file removed", slog.String("file_id", entry.info.FileID))
	}
}
