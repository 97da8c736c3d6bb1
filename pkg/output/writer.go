package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for monitoring events.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a single line
// of JSON followed by a newline.
type Writer interface {
	// WriteSubmit emits a submission record.
	WriteSubmit(ctx context.Context, sub *SubmitRecord) error

	// WriteStatus emits a status snapshot record.
	WriteStatus(ctx context.Context, status *StatusRecord) error

	// WriteError emits an error record.
	WriteError(ctx context.Context, errRec *ErrorRecord) error

	// WriteCollection emits a collection summary record.
	WriteCollection(ctx context.Context, col *CollectionRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using a
// mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w      io.Writer
	testID string
	jobID  string
	mu     sync.Mutex

	// closed indicates the writer has been closed.
	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - testID: Correlation id for the submission
//   - jobID: Scheduler job id, may be empty before submission
func NewJSONLWriter(w io.Writer, testID, jobID string) *JSONLWriter {
	return &JSONLWriter{
		w:      w,
		testID: testID,
		jobID:  jobID,
	}
}

// SetJobID records the scheduler job id once it becomes known.
func (jw *JSONLWriter) SetJobID(jobID string) {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.jobID = jobID
}

// WriteSubmit emits a submission record.
func (jw *JSONLWriter) WriteSubmit(ctx context.Context, sub *SubmitRecord) error {
	return jw.writeRecord(ctx, TypeSubmit, sub)
}

// WriteStatus emits a status snapshot record.
func (jw *JSONLWriter) WriteStatus(ctx context.Context, status *StatusRecord) error {
	return jw.writeRecord(ctx, TypeStatus, status)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, errRec *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, errRec)
}

// WriteCollection emits a collection summary record.
func (jw *JSONLWriter) WriteCollection(ctx context.Context, col *CollectionRecord) error {
	return jw.writeRecord(ctx, TypeCollection, col)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
//
// This method holds the mutex for the entire operation to ensure atomic
// line writes.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	// Check context cancellation before acquiring lock
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the data payload first (outside the lock for better concurrency)
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:   recordType,
		TS:     time.Now().UTC(),
		TestID: jw.testID,
		JobID:  jw.jobID,
		Data:   dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// Write the record followed by newline.
	// We must handle short writes: io.Writer is allowed to return n < len(p)
	// with nil error, which would silently truncate JSONL lines and corrupt output.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, handling short writes.
//
// io.Writer.Write may return n < len(p) with a nil error (short write).
// This function loops until all bytes are written or an error occurs,
// ensuring complete JSONL lines are emitted.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			// No progress made - avoid infinite loop
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Discard is a Writer that drops every record. Useful when a caller does
// not want an event stream.
type Discard struct{}

func (Discard) WriteSubmit(context.Context, *SubmitRecord) error         { return nil }
func (Discard) WriteStatus(context.Context, *StatusRecord) error         { return nil }
func (Discard) WriteError(context.Context, *ErrorRecord) error           { return nil }
func (Discard) WriteCollection(context.Context, *CollectionRecord) error { return nil }
func (Discard) Close() error                                             { return nil }

// Compile-time checks that implementations satisfy Writer.
var (
	_ Writer = (*JSONLWriter)(nil)
	_ Writer = Discard{}
)
