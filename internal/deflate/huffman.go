package deflate

import "fmt"

// huffmanDecoder decodes canonical Huffman codes (RFC 1951 §3.2.2) bit by
// bit. It favors clarity over the table-driven speed of compress/flate:
// this package exists to expose decoder state for checkpointing, not to be
// the fastest inflate implementation.
type huffmanDecoder struct {
	// symbols[length] maps a code value (of that exact bit length) to the
	// symbol it represents.
	symbols  [maxHuffmanBits + 1]map[uint32]int
	minBits  int
	maxBits  int
}

const maxHuffmanBits = 15

// newHuffmanDecoder builds a canonical Huffman decoder from per-symbol code
// lengths (0 = symbol unused).
func newHuffmanDecoder(lengths []int) (*huffmanDecoder, error) {
	var blCount [maxHuffmanBits + 1]int
	for _, l := range lengths {
		if l > maxHuffmanBits {
			return nil, fmt.Errorf("deflate: code length %d exceeds %d", l, maxHuffmanBits)
		}
		if l > 0 {
			blCount[l]++
		}
	}

	var code int
	var nextCode [maxHuffmanBits + 1]int
	for bits := 1; bits <= maxHuffmanBits; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}

	h := &huffmanDecoder{}
	for l := range h.symbols {
		h.symbols[l] = map[uint32]int{}
	}
	h.minBits, h.maxBits = maxHuffmanBits+1, 0
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		c := nextCode[l]
		nextCode[l]++
		h.symbols[l][uint32(c)] = sym
		if l < h.minBits {
			h.minBits = l
		}
		if l > h.maxBits {
			h.maxBits = l
		}
	}
	return h, nil
}

// decode reads one Huffman symbol from br.
func (h *huffmanDecoder) decode(br *bitReader) (int, error) {
	var code uint32
	for length := 1; length <= maxHuffmanBits; length++ {
		bit, err := br.bit()
		if err != nil {
			return 0, err
		}
		code = (code << 1) | bit
		if length >= h.minBits {
			if sym, ok := h.symbols[length][code]; ok {
				return sym, nil
			}
		}
	}
	return 0, fmt.Errorf("deflate: invalid huffman code")
}

// fixedLiteralLengths builds the fixed literal/length code table of
// RFC 1951 §3.2.6.
func fixedLiteralLengths() []int {
	lengths := make([]int, 288)
	for i := 0; i < 144; i++ {
		lengths[i] = 8
	}
	for i := 144; i < 256; i++ {
		lengths[i] = 9
	}
	for i := 256; i < 280; i++ {
		lengths[i] = 7
	}
	for i := 280; i < 288; i++ {
		lengths[i] = 8
	}
	return lengths
}

// fixedDistanceLengths builds the fixed distance code table.
func fixedDistanceLengths() []int {
	lengths := make([]int, 30)
	for i := range lengths {
		lengths[i] = 5
	}
	return lengths
}

// codeLengthOrder is the permutation RFC 1951 §3.2.7 uses to transmit the
// code-length alphabet's own code lengths.
var codeLengthOrder = []int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

var lengthBase = []int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31, 35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
var lengthExtraBits = []int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}

var distBase = []int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577}
var distExtraBits = []int{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}
