package packet

import (
	"errors"
	"fmt"
)

// FragmentSize is the fixed payload capacity of a single fragment.
const FragmentSize = 128

// ErrPayloadTooLarge is returned when data does not fit in one fragment.
var ErrPayloadTooLarge = errors.New("payload exceeds fragment size")

// Fragment is one piece of a message. Only the first Length bytes of Data are meaningful.
type Fragment struct {
	FragmentIndex  uint64
	TotalFragments uint64
	Length         uint8
	Data           [FragmentSize]byte
}

// NewFragmentData builds a fragment holding a copy of data.
func NewFragmentData(index, total uint64, data []byte) (*Fragment, error) {
	if len(data) > FragmentSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(data), FragmentSize)
	}
	f := &Fragment{
		FragmentIndex:  index,
		TotalFragments: total,
		Length:         uint8(len(data)),
	}
	copy(f.Data[:], data)
	return f, nil
}

// NewFragmentFromString builds a fragment holding the bytes of s.
func NewFragmentFromString(index, total uint64, s string) (*Fragment, error) {
	return NewFragmentData(index, total, []byte(s))
}

func (f *Fragment) Type() Type { return TypeFragment }

// Payload returns a copy of the meaningful bytes of the fragment.
func (f *Fragment) Payload() []byte {
	n := int(f.Length)
	if n > FragmentSize {
		n = FragmentSize
	}
	out := make([]byte, n)
	copy(out, f.Data[:n])
	return out
}

func (f *Fragment) clone() Body {
	c := *f
	return &c
}

// Split cuts data into as many fragments as needed.
func Split(data []byte) []*Fragment {
	total := (len(data) + FragmentSize - 1) / FragmentSize
	if total == 0 {
		total = 1
	}
	fragments := make([]*Fragment, 0, total)
	for i := 0; i < total; i++ {
		end := min((i+1)*FragmentSize, len(data))
		f, _ := NewFragmentData(uint64(i), uint64(total), data[i*FragmentSize:end])
		fragments = append(fragments, f)
	}
	return fragments
}
