package seal

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MaxGenomeVolumes bounds how many volumes a genome may be split into.
// Sequence indices and volume numbers are packed into one integer.
const MaxGenomeVolumes = 64

type prjInfo struct {
	version  int
	alphabet string
	seqCount int
	volumes  int
	is4bit   bool
	is32     bool
}

func readPrjFile(baseName string) (prjInfo, error) {
	info := prjInfo{seqCount: -1, volumes: -1}
	fileName := baseName + ".prj"
	f, err := os.Open(fileName)
	if err != nil {
		return info, fmt.Errorf("can't open file: %s", fileName)
	}
	defer f.Close()

	bitsPerInt := 0
	bitsPerBase := 8
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "version":
			info.version, _ = strconv.Atoi(value)
		case "alphabet":
			info.alphabet = value
		case "numofsequences":
			info.seqCount, _ = strconv.Atoi(value)
		case "volumes":
			info.volumes, _ = strconv.Atoi(value)
		case "integersize":
			bitsPerInt, _ = strconv.Atoi(value)
		case "symbolsize":
			bitsPerBase, _ = strconv.Atoi(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return info, fmt.Errorf("can't read file: %s: %w", fileName, err)
	}
	if info.alphabet != DNA {
		return info, fmt.Errorf("can't read file: %s", fileName)
	}
	if bitsPerInt < 1 && info.version < 999 {
		bitsPerInt = 32
	}
	info.is32 = bitsPerInt == 32
	info.is4bit = bitsPerBase == 4
	return info, nil
}

// WritePrj writes a genome index file matching what readPrjFile expects.
// Offsets written by ToFiles are 64-bit, so integersize is fixed at 64.
func WritePrj(baseName, alphabet string, seqCount, volumes int, is4bit bool) error {
	symbolSize := 8
	if is4bit {
		symbolSize = 4
	}
	text := fmt.Sprintf("version=1\nalphabet=%s\nnumofsequences=%d\nvolumes=%d\nintegersize=64\nsymbolsize=%d\n",
		alphabet, seqCount, volumes, symbolSize)
	return os.WriteFile(baseName+".prj", []byte(text), 0666)
}

// Genome maps sequence names to packed bases across one or more
// memory-mapped volumes. It is read-only after ReadGenome and safe to
// share between workers.
type Genome struct {
	volumes []*Volume
	index   map[string]int // name -> seqIndex*MaxGenomeVolumes + volume
}

// ReadGenome opens a genome written under baseName, recursing into
// numbered volumes when the index says the genome is multivolume.
func ReadGenome(baseName string) (*Genome, error) {
	info, err := readPrjFile(baseName)
	if err != nil {
		return nil, err
	}
	g := &Genome{index: make(map[string]int)}
	if info.volumes > 1 {
		if info.volumes > MaxGenomeVolumes {
			return nil, fmt.Errorf("too many volumes: %s", baseName)
		}
		for i := 0; i < info.volumes; i++ {
			b := baseName + strconv.Itoa(i)
			sub, err := readPrjFile(b)
			if err != nil {
				return nil, err
			}
			if err := g.readVolume(b, sub.seqCount, i, sub.is4bit, sub.is32); err != nil {
				return nil, err
			}
		}
	} else {
		if err := g.readVolume(baseName, info.seqCount, 0, info.is4bit, info.is32); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Genome) readVolume(baseName string, seqCount, volumeNumber int, is4bit, is32 bool) error {
	if seqCount < 0 {
		return fmt.Errorf("can't read: %s", baseName)
	}
	v, err := OpenVolume(baseName, seqCount, is4bit, is32)
	if err != nil {
		return err
	}
	for i := 0; i < seqCount; i++ {
		if v.StrandChar(i) == StrandRev {
			continue
		}
		n := v.SeqName(i)
		if _, dup := g.index[n]; dup {
			return fmt.Errorf("duplicate sequence name: %s", n)
		}
		g.index[n] = i*MaxGenomeVolumes + volumeNumber
	}
	for len(g.volumes) <= volumeNumber {
		g.volumes = append(g.volumes, nil)
	}
	g.volumes[volumeNumber] = v
	return nil
}

// SeqNames lists the forward-strand sequence names, in volume order.
func (g *Genome) SeqNames() []string {
	var names []string
	for _, v := range g.volumes {
		if v == nil {
			continue
		}
		for i := 0; i < v.Count(); i++ {
			if v.StrandChar(i) != StrandRev {
				names = append(names, v.SeqName(i))
			}
		}
	}
	return names
}

// SeqEnds resolves a sequence name to its packed base range.
func (g *Genome) SeqEnds(seqName string) (beg, end int, seq PackedSeq, err error) {
	packed, ok := g.index[seqName]
	if !ok {
		return 0, 0, PackedSeq{}, fmt.Errorf("can't find %s in the genome", seqName)
	}
	v := g.volumes[packed%MaxGenomeVolumes]
	c := packed / MaxGenomeVolumes
	return v.SeqBeg(c), v.SeqEnd(c), v.Seq, nil
}

// Close unmaps all volumes.
func (g *Genome) Close() error {
	var first error
	for _, v := range g.volumes {
		if v == nil {
			continue
		}
		if err := v.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
