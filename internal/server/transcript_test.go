package server

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTranscript_Record(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := NewTranscript(buf)
	tr.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local) }

	tr.Record("room1", "System", "alice has joined the chat!")
	tr.Record("room1", "alice", "hello")

	assert.Equal(t,
		"[2024-03-09 14:05:07] room1 - System: alice has joined the chat!\n"+
			"[2024-03-09 14:05:07] room1 - alice: hello\n",
		buf.String())
}

func TestTranscript_Nil(t *testing.T) {
	var tr *Transcript
	assert.NotPanics(t, func() { tr.Record("room1", "alice", "hello") })
}
