package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrRetriesExhausted wraps the last connection-loss error once every attempt has failed
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Connection-loss classification codes
const (
	CodeConnectionLost = "PROTOCOL_CONNECTION_LOST"
	CodeConnReset      = "ECONNRESET"
	CodeConnRefused    = "ECONNREFUSED"
	CodeBrokenPipe     = "EPIPE"
	CodeTimedOut       = "ETIMEDOUT"
)

var lostCodes = map[string]struct{}{
	CodeConnectionLost: {},
	CodeConnReset:      {},
	CodeConnRefused:    {},
	CodeBrokenPipe:     {},
	CodeTimedOut:       {},
}

// ConnError is an error carrying a classification code
type ConnError struct {
	Code string
	Err  error
}

func (e *ConnError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// sqlite primary result codes that mean the handle itself is unusable.
// SQLITE_BUSY and SQLITE_LOCKED are lock contention on a healthy handle.
var lostSQLiteCodes = map[int]struct{}{
	sqlite3.SQLITE_IOERR:    {},
	sqlite3.SQLITE_CANTOPEN: {},
	sqlite3.SQLITE_NOTADB:   {},
}

// IsConnectionLost reports whether err means the connection is gone and the
// operation may succeed on a fresh one.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}

	var ce *ConnError
	if errors.As(err, &ce) {
		if _, ok := lostCodes[ce.Code]; ok {
			return true
		}
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		if _, ok := lostSQLiteCodes[coded.Code()&0xff]; ok {
			return true
		}
	}
	return false
}
