package jobs

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// DecodeCursor parses an opaque page cursor. An empty string means the first page.
func DecodeCursor(cursorStr string) (*Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	createdAtStr, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok || jobID == "" {
		return nil, fmt.Errorf("%w: malformed", ErrInvalidCursor)
	}

	var createdAt int64
	if _, err := fmt.Sscanf(createdAtStr, "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("%w: bad timestamp: %v", ErrInvalidCursor, err)
	}

	return &Cursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		JobID:     jobID,
	}, nil
}

// Encode returns the opaque form of the cursor
func (c Cursor) Encode() string {
	cs := fmt.Sprintf("%d|%s", c.CreatedAt.UnixNano(), c.JobID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}

// CursorFor returns the cursor pointing just past job
func CursorFor(job Job) Cursor {
	return Cursor{CreatedAt: job.CreatedAt, JobID: job.ID}
}
