package usblink

import "sync/atomic"

// Stats holds the per-interface saturating counters of §4.5. Counters
// are updated via saturating adds so a long-running interface never
// wraps silently past 2^32-1; RingHighWater is a high-water mark, stored
// rather than added.
type Stats struct {
	RxPackets     uint32
	RxBytes       uint32
	ChecksumErr   uint32
	CRCErr        uint32
	FrameErr      uint32
	AckTimeoutErr uint32
	Duplicates    uint32
	TxAborts      uint32
	TxRejects     uint32
	RingHighWater uint32
	RingDrops     uint32
}

func satAdd32(p *uint32, n uint32) {
	for {
		old := atomic.LoadUint32(p)
		next := old + n
		if next < old {
			next = ^uint32(0)
		}
		if atomic.CompareAndSwapUint32(p, old, next) {
			return
		}
	}
}

func (s *Stats) incRxPackets()     { satAdd32(&s.RxPackets, 1) }
func (s *Stats) addRxBytes(n int)  { satAdd32(&s.RxBytes, uint32(n)) }
func (s *Stats) incChecksumErr()   { satAdd32(&s.ChecksumErr, 1) }
func (s *Stats) incFrameErr()      { satAdd32(&s.FrameErr, 1) }
func (s *Stats) incAckTimeoutErr() { satAdd32(&s.AckTimeoutErr, 1) }
func (s *Stats) incDuplicates()    { satAdd32(&s.Duplicates, 1) }
func (s *Stats) incTxAborts()      { satAdd32(&s.TxAborts, 1) }
func (s *Stats) incTxRejects()     { satAdd32(&s.TxRejects, 1) }

func (s *Stats) noteRingDepth(depth int) {
	if uint32(depth) > atomic.LoadUint32(&s.RingHighWater) {
		atomic.StoreUint32(&s.RingHighWater, uint32(depth))
	}
}

func (s *Stats) incRingDrops() { satAdd32(&s.RingDrops, 1) }
