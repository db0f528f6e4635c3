// Package encoding packs terrain words for snapshots and the observer
// bootstrap payload.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeWords run-length encodes tile words into base64(varint pairs).
// The pairs are (word, run_len) repeated.
func EncodeWords(words []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(words); {
		w := words[i]
		run := 1
		for j := i + 1; j < len(words) && words[j] == w; j++ {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(w))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeWords reverses EncodeWords. want bounds the output so a corrupt run
// length cannot allocate without limit; pass the expected tile count.
func DecodeWords(b64 string, want int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, want)
	for i := 0; i < len(raw); {
		w, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if w > 0xFFFF {
			return nil, fmt.Errorf("word too large: %d", w)
		}
		if uint64(len(out))+run > uint64(want) {
			return nil, fmt.Errorf("run overflows %d tiles", want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(w))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d tiles, want %d", len(out), want)
	}
	return out, nil
}
