package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strconv"
)

// ErrAlreadyApplied signals that the requested artifact version has already
// been downloaded and accepted.
var ErrAlreadyApplied = errors.New("update already applied")

// UpdateRecord is the persisted history of one update task.
type UpdateRecord struct {
	TaskID     string
	Artifact   string
	Version    string
	SourceURL  string
	Checksum   string
	FilePath   string
	Status     string
	Attempts   int
	LastError  string
	StartedAt  string
	FinishedAt string
	LockedBy   string
}

// UpdateReadRepository reads update history.
type UpdateReadRepository interface {
	GetUpdates() ([]UpdateRecord, error)
	GetUpdate(taskID string) (*UpdateRecord, error)
}

// UpdateWriteRepository records update lifecycle transitions.
type UpdateWriteRepository interface {
	ClaimUpdate(rec UpdateRecord, instanceID string) (bool, error)            // atomically claim an artifact version
	FinishUpdate(taskID, status string, attempts int, lastError string) error // record the terminal outcome
}

// UpdateRepository combines both sides.
type UpdateRepository interface {
	UpdateReadRepository
	UpdateWriteRepository
}

// GenerateInstanceID returns a unique string for this process (hostname+pid+random).
func GenerateInstanceID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}
