package persist

import (
	"encoding/binary"
	"errors"

	"github.com/izot-community/lonstack/clog"
)

// Transaction-record signature/state patterns (§3). Both are bit patterns
// reachable from the erased (all-ones) word by clearing bits only:
// sigValid/stateValid are written in one AND-write right after an erase;
// invalidate clears state down to zero in a second AND-write that needs
// no erase. Going back from zero to stateValid needs a fresh erase,
// which is exactly the durability property §4.1 relies on.
const (
	sigErased   uint32 = 0xFFFFFFFF
	sigValid    uint32 = 0x5A3CA5C3
	stateValid  uint32 = 0xC35A3C5A
	stateInvalid uint32 = 0x00000000
)

// ErrPersistentFailure covers segment-store invariant violations not
// related to a specific write (bad segment kind, not open, etc).
var ErrPersistentFailure = errors.New("persist: persistent failure")

// ErrEepromWriteFail is returned when a physical write to the backing
// device fails. The root package records the errors of scheduled commits
// in its status error log.
var ErrEepromWriteFail = errors.New("persist: eeprom write failed")

// ErrPersistentFileError covers backing-device level errors (open/size).
var ErrPersistentFileError = errors.New("persist: persistent file error")

type layout struct {
	blockStart int // first block index
	blockCount int
	maxSize    int // usable payload capacity
}

// Store implements the §4.1 contract over a Device: open_for_read/write,
// write/read, close, enter/exit_transaction, is_in_transaction, and
// get_max_size. The dirty-flag/guard-band commit scheduler is the
// separate Scheduler type (schedule.go).
type Store struct {
	dev     Device
	layouts [segmentCount]layout
	dirty   [segmentCount]bool
	log     clog.Clog

	secIICompiledOut bool // set by NewStore's argument, see SPEC_FULL §13 Q1
}

// NewStore lays out the given segments end-to-end over dev, block-aligned,
// each sized to maxSize[seg]+headerSize+txRecordSize rounded up to a whole
// number of blocks (§4.1 invariant 2: disjoint, block-aligned ranges).
func NewStore(dev Device, maxSize map[Segment]int, secIICompiledOut bool) (*Store, error) {
	s := &Store{dev: dev, secIICompiledOut: secIICompiledOut}
	block := dev.BlockSize()
	if block <= 0 {
		return nil, ErrPersistentFailure
	}
	blockIdx := 0
	for seg := Segment(0); seg < segmentCount; seg++ {
		size := maxSize[seg]
		if seg == SegmentSecurityII && secIICompiledOut {
			size = 0
		}
		total := txRecordSize + headerSize + size
		blocks := (total + block - 1) / block
		if blocks == 0 {
			blocks = 1
		}
		if int64((blockIdx+blocks)*block) > dev.Size() {
			return nil, ErrPersistentFileError
		}
		s.layouts[seg] = layout{blockStart: blockIdx, blockCount: blocks, maxSize: size}
		blockIdx += blocks
	}
	return s, nil
}

// SetLogProvider installs a diagnostic log sink, matching clog's usage
// elsewhere in the stack.
func (s *Store) SetLogProvider(p clog.LogProvider) { s.log.SetLogProvider(p) }

func (s *Store) offset(seg Segment) int64 {
	return int64(s.layouts[seg].blockStart * s.dev.BlockSize())
}

// GetMaxSize returns the configured payload capacity for seg. Per SPEC_FULL
// §13 Q1, Security II returns 0 when compiled out.
func (s *Store) GetMaxSize(seg Segment) int {
	if seg >= segmentCount {
		return 0
	}
	if seg == SegmentSecurityII && s.secIICompiledOut {
		return 0
	}
	return s.layouts[seg].maxSize
}

func (s *Store) readTxRecord(seg Segment) (sig, state uint32, err error) {
	buf := make([]byte, txRecordSize)
	if _, err := s.dev.ReadAt(buf, s.offset(seg)); err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8]), nil
}

func (s *Store) writeTxRecord(seg Segment, sig, state uint32) error {
	buf := make([]byte, txRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], sig)
	binary.LittleEndian.PutUint32(buf[4:8], state)
	_, err := s.dev.WriteAt(buf, s.offset(seg))
	return err
}

// IsInTransaction reports whether seg's durable state is "in-transaction"
// (discarded on next boot), i.e. NOT (signature==valid AND state==valid).
func (s *Store) IsInTransaction(seg Segment) (bool, error) {
	sig, state, err := s.readTxRecord(seg)
	if err != nil {
		return false, err
	}
	return !(sig == sigValid && state == stateValid), nil
}

// EnterTransaction marks seg in-transaction by clearing the state word to
// zero — no erase required (§4.1).
func (s *Store) EnterTransaction(seg Segment) error {
	sig, _, err := s.readTxRecord(seg)
	if err != nil {
		return err
	}
	if err := s.writeTxRecord(seg, sig, stateInvalid); err != nil {
		s.log.Error("persist: enter_transaction write failed for %s: %v", seg, err)
		return ErrEepromWriteFail
	}
	return nil
}

// eraseSegment erases every block backing seg, which is the only way to
// bring its transaction-record words back to the all-ones erased state.
func (s *Store) eraseSegment(seg Segment) error {
	l := s.layouts[seg]
	for i := 0; i < l.blockCount; i++ {
		if err := s.dev.EraseBlock(l.blockStart + i); err != nil {
			return err
		}
	}
	return nil
}

// WriteHandle is returned by OpenForWrite; Write/Close operate on it.
type WriteHandle struct {
	store   *Store
	seg     Segment
	size    int
	payload []byte // staged; flushed to the device on ExitTransaction
}

// OpenForWrite atomically invalidates seg's transaction record, erases
// enough blocks to cover size+header, and returns a handle in the
// "in-transaction" state (§4.1).
func (s *Store) OpenForWrite(seg Segment, size int) (*WriteHandle, error) {
	if seg >= segmentCount || size > s.GetMaxSize(seg) {
		return nil, ErrPersistentFailure
	}
	if err := s.EnterTransaction(seg); err != nil {
		return nil, err
	}
	if err := s.eraseSegment(seg); err != nil {
		s.log.Error("persist: erase failed for %s: %v", seg, err)
		return nil, ErrEepromWriteFail
	}
	return &WriteHandle{store: s, seg: seg, size: size, payload: make([]byte, size)}, nil
}

// Write stages bytes at offset within the handle's payload.
func (h *WriteHandle) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(h.payload) {
		return ErrPersistentFailure
	}
	copy(h.payload[offset:], data)
	return nil
}

// Close releases the handle without committing (§4.1: close does not
// commit; ExitTransaction does).
func (h *WriteHandle) Close() error { return nil }

// ExitTransaction writes header+payload and the valid transaction-record
// pair, requiring the block to have been erased since the matching
// EnterTransaction/OpenForWrite (enforced here since OpenForWrite always
// erases immediately before staging).
func (s *Store) ExitTransaction(h *WriteHandle, appSig uint32) error {
	headerBuf := encodeHeader(Header{
		Length:         uint32(len(h.payload)),
		SegmentSig:     uint32(h.seg) + 1,
		ApplicationSig: appSig,
		Version:        1,
		Checksum:       byteSum(h.payload),
	})
	base := s.offset(h.seg) + txRecordSize
	if _, err := s.dev.WriteAt(headerBuf, base); err != nil {
		s.log.Error("persist: header write failed for %s: %v", h.seg, err)
		return ErrEepromWriteFail
	}
	if len(h.payload) > 0 {
		if _, err := s.dev.WriteAt(h.payload, base+headerSize); err != nil {
			s.log.Error("persist: payload write failed for %s: %v", h.seg, err)
			return ErrEepromWriteFail
		}
	}
	if err := s.writeTxRecord(h.seg, sigValid, stateValid); err != nil {
		s.log.Error("persist: commit write failed for %s: %v", h.seg, err)
		return ErrEepromWriteFail
	}
	return nil
}

func byteSum(b []byte) uint16 {
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}
	return sum
}

// ReadHandle is returned by OpenForRead.
type ReadHandle struct {
	store  *Store
	seg    Segment
	header Header
	base   int64
}

// OpenForRead returns a handle over seg's committed contents, or nil if
// the segment is in-transaction (treated as empty per §3 invariant 1).
func (s *Store) OpenForRead(seg Segment) (*ReadHandle, error) {
	inTx, err := s.IsInTransaction(seg)
	if err != nil {
		return nil, err
	}
	if inTx {
		return nil, nil
	}
	base := s.offset(seg) + txRecordSize
	hbuf := make([]byte, headerSize)
	if _, err := s.dev.ReadAt(hbuf, base); err != nil {
		return nil, err
	}
	return &ReadHandle{store: s, seg: seg, header: decodeHeader(hbuf), base: base + headerSize}, nil
}

// Header returns the committed segment header.
func (h *ReadHandle) Header() Header { return h.header }

// Read copies buf's length of payload bytes starting at offset.
func (h *ReadHandle) Read(offset int, buf []byte) (int, error) {
	if offset < 0 || uint32(offset+len(buf)) > h.header.Length {
		return 0, ErrPersistentFailure
	}
	return h.store.dev.ReadAt(buf, h.base+int64(offset))
}

// ReadAll returns the whole committed payload.
func (h *ReadHandle) ReadAll() ([]byte, error) {
	buf := make([]byte, h.header.Length)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := h.store.dev.ReadAt(buf, h.base); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close releases the read handle.
func (h *ReadHandle) Close() error { return nil }

// WriteSegment is a convenience wrapper implementing the full commit
// sequence (enter -> open_for_write -> write -> close -> exit) for
// callers that do not need to stage writes incrementally. It is also what
// the commit scheduler (schedule.go) calls for each dirty segment.
func (s *Store) WriteSegment(seg Segment, payload []byte, appSig uint32) error {
	h, err := s.OpenForWrite(seg, len(payload))
	if err != nil {
		return err
	}
	if err := h.Write(0, payload); err != nil {
		h.Close()
		return err
	}
	h.Close()
	return s.ExitTransaction(h, appSig)
}

// ReadSegment is a convenience wrapper returning a committed segment's
// full payload, or (nil, nil) if the segment is empty/in-transaction.
func (s *Store) ReadSegment(seg Segment) ([]byte, error) {
	h, err := s.OpenForRead(seg)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	defer h.Close()
	return h.ReadAll()
}
