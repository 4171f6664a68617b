package schema

import "sync"

// rabinEmpty is the CRC-64-AVRO polynomial constant from the Avro
// specification's fingerprinting appendix.
const rabinEmpty = uint64(0xc15d213aa4d7a795)

var (
	rabinOnce  sync.Once
	rabinTable [256]uint64
)

func rabinInit() {
	for i := range rabinTable {
		fp := uint64(i)
		for j := 0; j < 8; j++ {
			fp = (fp >> 1) ^ (rabinEmpty & -(fp & 1))
		}
		rabinTable[i] = fp
	}
}

// rabinFingerprint computes the CRC-64-AVRO fingerprint of the canonical
// form, returned as 8 little-endian bytes per the single-object encoding.
func rabinFingerprint(canonical string) [8]byte {
	rabinOnce.Do(rabinInit)
	fp := rabinEmpty
	for i := 0; i < len(canonical); i++ {
		fp = (fp >> 8) ^ rabinTable[byte(fp)^canonical[i]]
	}
	var out [8]byte
	for i := range out {
		out[i] = byte(fp >> (8 * i))
	}
	return out
}
