package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []Record {
	t.Helper()
	var records []Record
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line: %s", line)
		records = append(records, rec)
	}
	return records
}

func TestJSONLWriter_EnvelopeFields(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "t-001", "59774392")
	ctx := context.Background()

	require.NoError(t, w.WriteStatus(ctx, &StatusRecord{State: "RUNNING", Elapsed: "00:01:00", InQueue: true}))

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, TypeStatus, records[0].Type)
	assert.Equal(t, "t-001", records[0].TestID)
	assert.Equal(t, "59774392", records[0].JobID)
	assert.False(t, records[0].TS.IsZero())

	var status StatusRecord
	require.NoError(t, json.Unmarshal(records[0].Data, &status))
	assert.Equal(t, "RUNNING", status.State)
	assert.True(t, status.InQueue)
}

func TestJSONLWriter_AllRecordTypes(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "t-001", "")
	ctx := context.Background()

	require.NoError(t, w.WriteSubmit(ctx, &SubmitRecord{Host: "cluster", Script: "/home/u/run.sh"}))
	w.SetJobID("42")
	require.NoError(t, w.WriteStatus(ctx, &StatusRecord{State: "PENDING", InQueue: true}))
	require.NoError(t, w.WriteError(ctx, &ErrorRecord{Code: ErrCodeTransport, Message: "refused", Consecutive: 2}))
	require.NoError(t, w.WriteCollection(ctx, &CollectionRecord{Outcome: "SUCCESS", Files: []string{"out.dat"}}))

	records := decodeLines(t, &buf)
	require.Len(t, records, 4)
	assert.Equal(t, TypeSubmit, records[0].Type)
	assert.Empty(t, records[0].JobID, "job id unknown at submission time")
	assert.Equal(t, TypeStatus, records[1].Type)
	assert.Equal(t, "42", records[1].JobID)
	assert.Equal(t, TypeError, records[2].Type)
	assert.Equal(t, TypeCollection, records[3].Type)
}

func TestJSONLWriter_ClosedWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "t-001", "")
	require.NoError(t, w.Close())

	err := w.WriteStatus(context.Background(), &StatusRecord{State: "RUNNING"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "t-001", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteStatus(ctx, &StatusRecord{State: "RUNNING"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

// shortWriter writes one byte at a time to exercise short-write handling.
type shortWriter struct{ buf bytes.Buffer }

func (s *shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return s.buf.Write(p[:1])
}

func TestJSONLWriter_ShortWrites(t *testing.T) {
	sw := &shortWriter{}
	w := NewJSONLWriter(sw, "t-001", "1")

	require.NoError(t, w.WriteStatus(context.Background(), &StatusRecord{State: "RUNNING"}))

	var rec Record
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(sw.buf.Bytes()), &rec))
	assert.Equal(t, TypeStatus, rec.Type)
}

// failWriter always fails.
type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(failWriter{}, "t-001", "1")

	err := w.WriteStatus(context.Background(), &StatusRecord{State: "RUNNING"})
	require.Error(t, err)

	var werr *WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "write", werr.Op)
}

func TestDiscard(t *testing.T) {
	d := Discard{}
	ctx := context.Background()
	assert.NoError(t, d.WriteStatus(ctx, &StatusRecord{}))
	assert.NoError(t, d.Close())
}
