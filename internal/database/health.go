package database

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/lib/pq"
)

// IsTerminal reports whether err means the tenant connection itself is
// broken, as opposed to a statement-level failure. SQLSTATE class 08 is a
// connection exception, class 57 operator intervention (server shutdown).
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		return class == "08" || class == "57"
	}

	return false
}

// ObserveError flags the tenant for reconnection when a storage operation
// failed at the transport level. Statement-level errors are ignored.
func (r *Registry) ObserveError(tenantId string, err error) {
	if IsTerminal(err) {
		r.log.Printf("tenant %q storage error is terminal, scheduling reconnect: %v", tenantId, err)
		r.MarkUnhealthy(tenantId)
	}
}
