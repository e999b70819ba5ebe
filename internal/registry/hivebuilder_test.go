package registry

import (
	"encoding/binary"
)

// No real hive samples are available in the retrieval pack, so these
// tests build self-consistent minimal regf/hbin/cell structures
// directly from this package's own offset constants, mirroring
// internal/lnk and internal/prefetch's fixture-builder test style.

type hiveBuilder struct {
	buf []byte
}

// addCell appends one size-prefixed cell, 8-byte aligned. allocated
// controls the sign of the stored size (negative = allocated, the
// convention readCell/cellIsFree both rely on).
func (b *hiveBuilder) addCell(data []byte, allocated bool) uint32 {
	size := 4 + len(data)
	if size%8 != 0 {
		data = append(data, make([]byte, 8-size%8)...)
		size = 4 + len(data)
	}
	off := uint32(32 + len(b.buf))
	szBuf := make([]byte, 4)
	if allocated {
		binary.LittleEndian.PutUint32(szBuf, uint32(int32(-size)))
	} else {
		binary.LittleEndian.PutUint32(szBuf, uint32(int32(size)))
	}
	b.buf = append(b.buf, szBuf...)
	b.buf = append(b.buf, data...)
	return off
}

func (b *hiveBuilder) build(rootOffsetRel uint32) []byte {
	header := make([]byte, 4096)
	copy(header[0:4], "regf")
	binary.LittleEndian.PutUint32(header[0x24:0x28], rootOffsetRel)

	body := append([]byte(nil), b.buf...)
	binSize := 32 + len(body)
	if binSize%4096 != 0 {
		body = append(body, make([]byte, 4096-binSize%4096)...)
		binSize = 32 + len(body)
	}
	hbinHeader := make([]byte, 32)
	copy(hbinHeader[0:4], "hbin")
	binary.LittleEndian.PutUint32(hbinHeader[8:12], uint32(binSize))

	out := append([]byte(nil), header...)
	out = append(out, hbinHeader...)
	out = append(out, body...)
	return out
}

func nkBytes(name string, parentOffRel, subkeysListOff uint32, numSubkeys uint32, valuesListOff uint32, numValues uint32, classNameOff uint32, classNameLen uint16, lastWriteTicks uint64) []byte {
	d := make([]byte, 76+len(name))
	copy(d[0:2], "nk")
	binary.LittleEndian.PutUint64(d[4:12], lastWriteTicks)
	binary.LittleEndian.PutUint32(d[16:20], parentOffRel)
	binary.LittleEndian.PutUint32(d[20:24], numSubkeys)
	binary.LittleEndian.PutUint32(d[28:32], subkeysListOff)
	binary.LittleEndian.PutUint32(d[36:40], numValues)
	binary.LittleEndian.PutUint32(d[40:44], valuesListOff)
	binary.LittleEndian.PutUint32(d[48:52], classNameOff)
	binary.LittleEndian.PutUint16(d[74:76], classNameLen)
	copy(d[76:], name)
	return d
}

func vkDWORDBytes(name string, value uint32) []byte {
	d := make([]byte, 20+len(name))
	copy(d[0:2], "vk")
	binary.LittleEndian.PutUint16(d[2:4], uint16(len(name)))
	binary.LittleEndian.PutUint32(d[4:8], 0x80000000|4)
	binary.LittleEndian.PutUint32(d[8:12], value)
	binary.LittleEndian.PutUint32(d[12:16], regDWORD)
	copy(d[20:], name)
	return d
}

func lfBytes(entries []uint32) []byte {
	d := make([]byte, 4+8*len(entries))
	copy(d[0:2], "lf")
	binary.LittleEndian.PutUint16(d[2:4], uint16(len(entries)))
	for i, e := range entries {
		binary.LittleEndian.PutUint32(d[4+i*8:8+i*8], e)
	}
	return d
}

func valueListBytes(entries []uint32) []byte {
	d := make([]byte, 4*len(entries))
	for i, e := range entries {
		binary.LittleEndian.PutUint32(d[i*4:i*4+4], e)
	}
	return d
}
