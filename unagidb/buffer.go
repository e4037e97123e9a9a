package unagidb

// byteBuffer is a growable, contiguous byte array. Bytes are never
// overwritten or removed once appended: growth copies the existing
// contents into a larger array at the same positions, so an offset
// returned by append remains valid for the process lifetime even as the
// array is reallocated underneath it.
type byteBuffer struct {
	a []byte
}

// bufferInitCapacity is the floor capacity of a non-empty buffer (16 KiB),
// matching the char_buf allocator this type replaces.
const bufferInitCapacity = 1 << 14

func newByteBuffer() *byteBuffer {
	return &byteBuffer{}
}

// append copies p onto the end of the buffer and returns the offset at
// which it now starts.
func (b *byteBuffer) append(p []byte) int {
	offset := len(b.a)
	reqLen := offset + len(p)

	if cap(b.a) < reqLen {
		newCap := cap(b.a)
		if newCap == 0 {
			newCap = bufferInitCapacity
		}
		for newCap < reqLen {
			newCap *= 2
		}
		grown := make([]byte, offset, newCap)
		copy(grown, b.a)
		b.a = grown
	}

	b.a = b.a[:reqLen]
	copy(b.a[offset:], p)
	return offset
}

func (b *byteBuffer) length() int {
	return len(b.a)
}

// slice returns the bytes [offset, offset+length). The returned slice
// aliases the buffer and is only valid until the next append.
func (b *byteBuffer) slice(offset, length int) []byte {
	return b.a[offset : offset+length]
}

func (b *byteBuffer) bytes() []byte {
	return b.a
}
