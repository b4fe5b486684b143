package izot

import "github.com/izot-community/lonstack/lifecycle"

// maxErrorLog bounds the in-memory error log so a persistent failure
// storm cannot grow Status without bound.
const maxErrorLog = 32

// Status is the read-only query surface of §6: transmit-errors,
// transaction-timeouts, receive-transactions-full, lost/missed messages,
// reset-cause, node-state, architecture number, firmware version, the
// error log, and the lost-events counter.
type Status struct {
	TransmitErrors          uint32
	TransactionTimeouts     uint32
	ReceiveTransactionsFull uint32
	LostMessages            uint32
	MissedMessages          uint32
	ResetCause              lifecycle.ResetCause
	NodeState               lifecycle.State
	ArchitectureNumber      uint16
	FirmwareVersion         uint16
	ErrorLog                []string
	LostEventsCounter       uint32
}

// recordError appends to the bounded error log, implementing
// LCS_RecordError (§7: "Persistent-write errors are recorded... via
// LCS_RecordError").
func (s *Status) recordError(msg string) {
	s.ErrorLog = append(s.ErrorLog, msg)
	if len(s.ErrorLog) > maxErrorLog {
		s.ErrorLog = s.ErrorLog[len(s.ErrorLog)-maxErrorLog:]
	}
}

// Status returns a point-in-time snapshot of the query surface, refreshing
// node-state from the live lifecycle device; reset-cause is the one last
// recorded by the Reset callback.
func (ctx *StackContext) Status() Status {
	snap := ctx.status
	snap.NodeState = ctx.Device.State()
	snap.ErrorLog = append([]string(nil), ctx.status.ErrorLog...)
	return snap
}
