package server

import (
	"io"
	"log"
	"time"
)

const transcriptTimeFormat = "2006-01-02 15:04:05"

// Transcript appends a human readable line per chat event to a file.
// A nil Transcript discards everything.
type Transcript struct {
	log *log.Logger
	now func() time.Time
}

func NewTranscript(w io.Writer) *Transcript {
	return &Transcript{
		log: log.New(w, "", 0),
		now: time.Now,
	}
}

func (t *Transcript) Record(room, user, text string) {
	if t == nil {
		return
	}

	t.log.Printf("[%s] %s - %s: %s", t.now().Format(transcriptTimeFormat), room, user, text)
}
