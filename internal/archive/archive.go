// Package archive keeps a record of completed interviews as append-only
// JSON lines in a local file, one summary per line.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/intervox/internal/session"
)

// Record is a single archived interview.
type Record struct {
	ArchivedAt     time.Time             `json:"archivedAt"`
	SessionID      string                `json:"sessionId"`
	InterviewType  session.InterviewType `json:"interviewType"`
	StartedAt      time.Time             `json:"startedAt"`
	EndedAt        time.Time             `json:"endedAt"`
	ElapsedSeconds int                   `json:"elapsedSeconds"`
	Reason         session.EndReason     `json:"reason"`
	UserTurns      int                   `json:"userTurns"`
	SystemTurns    int                   `json:"systemTurns"`
	Turns          []session.Utterance   `json:"turns"`
}

// FileStore appends records to a file. Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore returns a FileStore writing to path. The file is created on
// the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Save appends sum to the file.
func (fs *FileStore) Save(sum session.Summary) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	record := Record{
		ArchivedAt:     fs.now().UTC(),
		SessionID:      sum.ID,
		InterviewType:  sum.Type,
		StartedAt:      sum.StartedAt,
		EndedAt:        sum.EndedAt,
		ElapsedSeconds: int(sum.Elapsed / time.Second),
		Reason:         sum.Reason,
		UserTurns:      sum.UserTurns,
		SystemTurns:    sum.SystemTurns,
		Turns:          sum.Turns,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("archive: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("archive: write: %w", err)
	}
	return nil
}
