package config

import "errors"

// ErrCnfgChecksumError is reported when the periodic integrity check finds
// the recomputed checksum does not match the stored one (§3, §7).
var ErrCnfgChecksumError = errors.New("config: configuration checksum mismatch")

// Image is the in-memory configuration image whose byte-sum checksum is
// verified once per second while running (§3). It aggregates the domains,
// address table, data-point definitions, and aliases that make up the
// checksummed region.
type Image struct {
	Domains   [MaxDomains]Domain
	Addresses *AddressTable
	Datapoints []Datapoint
	Aliases   []Alias

	checksum uint8
}

// Checksum returns the last-recomputed checksum value.
func (img *Image) Checksum() uint8 { return img.checksum }

// bytes serializes the checksummed fields into a flat byte slice. This is
// intentionally a plain byte-sum target, not a cryptographic digest: §3
// specifies "a byte-sum over the full configuration image."
func (img *Image) bytes() []byte {
	var out []byte
	for i := range img.Domains {
		d := &img.Domains[i]
		out = append(out, d.ID[:]...)
		out = append(out, d.Len, d.Subnet, d.Node, d.flags)
		out = append(out, d.Key[:]...)
	}
	if img.Addresses != nil {
		for i := 0; i < img.Addresses.Len(); i++ {
			e, _ := img.Addresses.Get(i)
			out = append(out, byte(e.Format), e.DomainIdx, e.Subnet, e.Node,
				e.GroupID, e.GroupSize, byte(e.TxTimer), byte(e.TxTimer>>8), e.RetryCnt)
			out = append(out, e.UniqueID[:]...)
		}
	}
	for i := range img.Datapoints {
		dp := &img.Datapoints[i]
		out = append(out, byte(dp.Index), byte(dp.Index>>8), dp.Size,
			byte(dp.AddressIndex), byte(dp.AddressIndex>>8))
	}
	for i := range img.Aliases {
		a := &img.Aliases[i]
		out = append(out, byte(a.DPIndex), byte(a.DPIndex>>8),
			byte(a.Selector), byte(a.Selector>>8),
			byte(a.AddressIndex), byte(a.AddressIndex>>8))
	}
	return out
}

// Recompute recalculates and stores the checksum over the current image
// contents. Per §8's idempotence property, calling Recompute with
// unchanged contents does not alter externally observable state beyond
// the checksum value itself.
func (img *Image) Recompute() uint8 {
	var sum uint8
	for _, b := range img.bytes() {
		sum += b
	}
	img.checksum = sum
	return sum
}

// Verify sums the image's current contents and compares the result with
// the checksum stored by the last Recompute call, implementing
// the 1 Hz integrity check of §3/§7. A mismatch is the caller's signal to
// force ApplicationUnconfig and a software reset (§4.6, §7).
func (img *Image) Verify() error {
	want := img.checksum
	got := img.sumOnly()
	if got != want {
		return ErrCnfgChecksumError
	}
	return nil
}

func (img *Image) sumOnly() uint8 {
	var sum uint8
	for _, b := range img.bytes() {
		sum += b
	}
	return sum
}

// AddressTableCount returns the number of rows in the configured address
// table. Per §9 open question #3, this is the explicit capacity set at
// stack-creation time (AddressTable's own length), never a derived
// AliasCount/Extended field.
func (img *Image) AddressTableCount() int {
	if img.Addresses == nil {
		return 0
	}
	return img.Addresses.Len()
}
