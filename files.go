package seal

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// PackedSeq is a read-only view of packed bases: one base per byte, or
// two per byte with the low nibble holding the even position.
type PackedSeq struct {
	Data   []byte
	Is4bit bool
}

// At returns the code at position i.
func (p PackedSeq) At(i int) byte {
	if !p.Is4bit {
		return p.Data[i]
	}
	b := p.Data[i/2]
	if i%2 == 0 {
		return b & 0xf
	}
	return b >> 4
}

func pack4bit(codes []byte) []byte {
	out := make([]byte, (len(codes)+1)/2)
	for i, c := range codes {
		if i%2 == 0 {
			out[i/2] = c & 0xf
		} else {
			out[i/2] |= c << 4
		}
	}
	return out
}

// ToFiles writes the container's sequence data as a file set:
// .tis packed bases, .ssp sequence start offsets, .sds name start
// offsets, .des name bytes, and .qua quality scores when present.
// Offsets are written as 64-bit little-endian integers.
func (m *MultiSequence) ToFiles(baseName string, is4bit bool) error {
	tis := m.Seq[:m.Ends[m.Count()]]
	if is4bit {
		tis = pack4bit(tis)
	}
	if err := os.WriteFile(baseName+".tis", tis, 0666); err != nil {
		return err
	}
	if err := writeInts(baseName+".ssp", m.Ends); err != nil {
		return err
	}
	if err := writeInts(baseName+".sds", m.NameEnds[:len(m.Ends)]); err != nil {
		return err
	}
	names := m.Names[:m.NameEnds[m.Count()]]
	if err := os.WriteFile(baseName+".des", names, 0666); err != nil {
		return err
	}
	if m.QualsPerLetter > 0 {
		quals := m.Quals[:m.Ends[m.Count()]*m.QualsPerLetter]
		if err := os.WriteFile(baseName+".qua", quals, 0666); err != nil {
			return err
		}
	}
	return nil
}

func writeInts(fileName string, v []int) error {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(x))
	}
	return os.WriteFile(fileName, buf, 0666)
}

// Volume is one memory-mapped volume of a sequence database.
type Volume struct {
	Seq      PackedSeq
	Ends     []int
	NameEnds []int
	Names    []byte

	maps []mmap.MMap
}

func (v *Volume) mapFile(fileName string) ([]byte, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, nil
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("can't map %s: %w", fileName, err)
	}
	v.maps = append(v.maps, mm)
	return mm, nil
}

func decodeInts(data []byte, count int, is32 bool) ([]int, error) {
	width := 8
	if is32 {
		width = 4
	}
	if len(data) < count*width {
		return nil, fmt.Errorf("truncated offset file: %d entries wanted", count)
	}
	out := make([]int, count)
	for i := range out {
		if is32 {
			out[i] = int(binary.LittleEndian.Uint32(data[i*4:]))
		} else {
			out[i] = int(binary.LittleEndian.Uint64(data[i*8:]))
		}
	}
	return out, nil
}

// OpenVolume memory-maps one volume's file set.
func OpenVolume(baseName string, seqCount int, is4bit, is32 bool) (*Volume, error) {
	v := &Volume{}
	ssp, err := v.mapFile(baseName + ".ssp")
	if err != nil {
		return nil, err
	}
	if v.Ends, err = decodeInts(ssp, seqCount+1, is32); err != nil {
		return nil, fmt.Errorf("%s.ssp: %w", baseName, err)
	}
	sds, err := v.mapFile(baseName + ".sds")
	if err != nil {
		return nil, err
	}
	if v.NameEnds, err = decodeInts(sds, seqCount+1, is32); err != nil {
		return nil, fmt.Errorf("%s.sds: %w", baseName, err)
	}
	if v.Names, err = v.mapFile(baseName + ".des"); err != nil {
		return nil, err
	}
	tis, err := v.mapFile(baseName + ".tis")
	if err != nil {
		return nil, err
	}
	v.Seq = PackedSeq{Data: tis, Is4bit: is4bit}
	return v, nil
}

// Close unmaps the volume's files.
func (v *Volume) Close() error {
	var first error
	for _, mm := range v.maps {
		if err := mm.Unmap(); err != nil && first == nil {
			first = err
		}
	}
	v.maps = nil
	return first
}

func (v *Volume) Count() int       { return len(v.Ends) - 1 }
func (v *Volume) PadSize() int     { return v.Ends[0] }
func (v *Volume) SeqBeg(i int) int { return v.Ends[i] }
func (v *Volume) SeqEnd(i int) int { return v.Ends[i+1] - v.PadSize() }

// SeqName returns name i without its strand character.
func (v *Volume) SeqName(i int) string {
	return string(v.Names[v.NameEnds[i] : v.NameEnds[i+1]-1])
}

// StrandChar returns the strand character of name i.
func (v *Volume) StrandChar(i int) byte { return v.Names[v.NameEnds[i+1]-1] }
