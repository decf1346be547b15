package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileManagerRoundTrip(t *testing.T) {
	fm, err := NewFileManager(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)

	fileID, err := fm.Add("job-1", "result.png", []byte("pixels"))
	require.NoError(t, err)
	require.NotEmpty(t, fileID)

	path, err := fm.Path(fileID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	info, err := fm.Info(fileID)
	require.NoError(t, err)
	assert.Equal(t, fileID, info.FileID)
	assert.Equal(t, "job-1", info.JobID)
	assert.Equal(t, "result.png", info.Filename)
	assert.Equal(t, info.CreatedAt.Add(time.Hour), info.ExpiresAt)
}

func TestFileManagerUnknownID(t *testing.T) {
	fm, err := NewFileManager(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)

	_, err = fm.Path("no-such-file")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = fm.Info("no-such-file")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileManagerExpiryHidesEntries(t *testing.T) {
	fm, err := NewFileManager(t.TempDir(), 10*time.Millisecond, nil)
	require.NoError(t, err)

	fileID, err := fm.Add("job-1", "out.txt", []byte("x"))
	require.NoError(t, err)

	// Expired entries read as absent even before the sweeper runs.
	require.Eventually(t, func() bool {
		_, err := fm.Path(fileID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
	_, err = fm.Info(fileID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileManagerSweepRemovesFiles(t *testing.T) {
	fm, err := NewFileManager(t.TempDir(), 10*time.Millisecond, nil)
	require.NoError(t, err)

	fileID, err := fm.Add("job-1", "out.txt", []byte("x"))
	require.NoError(t, err)
	path, err := fm.Path(fileID)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	fm.sweep(time.Now())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "expired file is deleted from disk")

	fm.mu.Lock()
	_, tracked := fm.files[fileID]
	fm.mu.Unlock()
	assert.False(t, tracked, "expired entry is dropped from the index")
}

func TestFileManagerStopIsIdempotent(t *testing.T) {
	fm, err := NewFileManager(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)
	fm.Start()
	fm.Stop()
	fm.Stop()
}
