package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/parley/internal/observability"
)

// Journal persists conversation transcripts as JSONL files, one file per
// session. It is an audit record only; session state is never restored
// from it.
type Journal struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// journalEntry is one line in a transcript file.
type journalEntry struct {
	SessionID string  `json:"session_id"`
	Message   Message `json:"message"`
}

// JournalInfo describes a stored transcript.
type JournalInfo struct {
	SessionID    string    `json:"session_id"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	MessageCount int       `json:"message_count"`
}

// NewJournal creates a transcript journal rooted at dir. When dir is empty
// it defaults to ~/.parley/transcripts.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".parley", "transcripts")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Transcript journal initialized")

	return &Journal{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

// validateSessionID rejects identifiers that could escape the journal dir.
func (j *Journal) validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(sessionID, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(sessionID, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(sessionID, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

func (j *Journal) transcriptPath(sessionID string) string {
	return filepath.Join(j.dir, sessionID+".jsonl")
}

func (j *Journal) writeLock(sessionID string) *sync.Mutex {
	j.locksMu.Lock()
	defer j.locksMu.Unlock()

	if lock, ok := j.writeLocks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.writeLocks[sessionID] = lock
	return lock
}

// Append writes one message to the session's transcript file, creating it
// on first use.
func (j *Journal) Append(sessionID string, msg Message) error {
	start := time.Now()
	defer func() {
		observability.RecordJournalAppend(time.Since(start))
	}()

	if err := j.validateSessionID(sessionID); err != nil {
		return err
	}

	lock := j.writeLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(j.transcriptPath(sessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(journalEntry{SessionID: sessionID, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync transcript file: %w", err)
	}

	return nil
}

// Read loads all messages from a transcript, skipping corrupt lines. A
// missing transcript yields an empty slice.
func (j *Journal) Read(sessionID string) ([]Message, error) {
	if err := j.validateSessionID(sessionID); err != nil {
		return nil, err
	}

	path := j.transcriptPath(sessionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []Message{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	// bufio.Reader instead of a Scanner: transcript lines carry whole
	// message payloads and can exceed the Scanner's default token limit.
	var messages []Message
	reader := bufio.NewReader(file)
	lineNum := 0

	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("failed to read transcript file: %w", readErr)
		}

		line = strings.TrimSuffix(line, "\n")
		if line != "" {
			lineNum++

			var entry journalEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				log.Warn().
					Str("session_id", sessionID).
					Int("line", lineNum).
					Err(err).
					Msg("Failed to parse transcript line, skipping")
			} else if entry.Message.Role == "" || entry.Message.Content == "" {
				log.Warn().
					Str("session_id", sessionID).
					Int("line", lineNum).
					Msg("Invalid transcript entry, skipping")
			} else {
				messages = append(messages, entry.Message)
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	return messages, nil
}

// List returns the session identifiers with stored transcripts.
func (j *Journal) List() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(name, ".jsonl"))
	}

	return sessions, nil
}

// Info returns metadata about a stored transcript.
func (j *Journal) Info(sessionID string) (JournalInfo, error) {
	if err := j.validateSessionID(sessionID); err != nil {
		return JournalInfo{}, err
	}

	stat, err := os.Stat(j.transcriptPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return JournalInfo{}, fmt.Errorf("transcript does not exist")
		}
		return JournalInfo{}, fmt.Errorf("failed to stat transcript file: %w", err)
	}

	messages, err := j.Read(sessionID)
	if err != nil {
		return JournalInfo{}, err
	}

	return JournalInfo{
		SessionID:    sessionID,
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
		MessageCount: len(messages),
	}, nil
}

// Remove deletes a transcript. Removing a missing transcript is a no-op.
func (j *Journal) Remove(sessionID string) error {
	if err := j.validateSessionID(sessionID); err != nil {
		return err
	}

	lock := j.writeLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(j.transcriptPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete transcript file: %w", err)
	}

	j.locksMu.Lock()
	delete(j.writeLocks, sessionID)
	j.locksMu.Unlock()

	return nil
}
