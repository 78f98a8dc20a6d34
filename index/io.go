package index

import (
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/last/alphabet"
	"github.com/grailbio/last/seed"
	"github.com/grailbio/last/util"
)

// On-disk layout: a set of files sharing a base name.
//
//	.prj  key=value text manifest
//	.suf  packed suffix-array positions
//	.bck  packed bucket offsets
//	.tis  encoded text image        (written by the seq package)
//	.des  name bytes                (written by the seq package)
//	.sds  name end offsets          (written by the seq package)
//	.ssp  sequence end offsets      (written by the seq package)
//	.chi / .kid / .chb  child table (uint64 / uint16 / uint8), optional

// Version is written to manifests; older manifests are rejected.
const Version = 1

// Manifest is the .prj key=value file describing a database.
type Manifest struct {
	Version        int
	Alphabet       string
	NumOfSequences uint64
	NumOfLetters   uint64
	MaskLowercase  int
	SequenceFormat int
	Volumes        int
	WordLength     int
	// SeedSpans[i] is the number of cyclic positions of seed i; the
	// concatenated SubsetSeeds lines are split accordingly.
	SeedSpans   []int
	SubsetSeeds []string
	// CumulativeCounts and BucketDepths restore the suffix array's shape.
	CumulativeCounts []uint64
	BucketDepths     []int
	PosBytes         int
	ChildTableType   int
	// Checksums maps a file suffix (e.g. "suf") to its seahash.
	Checksums map[string]uint64
}

func joinUints(v []uint64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatUint(x, 10)
	}
	return strings.Join(parts, ",")
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func splitUints(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		x, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		x, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

// Write writes the manifest to w.
func (m *Manifest) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "version=%d\n", m.Version)
	fmt.Fprintf(bw, "alphabet=%s\n", m.Alphabet)
	fmt.Fprintf(bw, "numofsequences=%d\n", m.NumOfSequences)
	fmt.Fprintf(bw, "numofletters=%d\n", m.NumOfLetters)
	fmt.Fprintf(bw, "masklowercase=%d\n", m.MaskLowercase)
	fmt.Fprintf(bw, "sequenceformat=%d\n", m.SequenceFormat)
	fmt.Fprintf(bw, "volumes=%d\n", m.Volumes)
	fmt.Fprintf(bw, "wordlength=%d\n", m.WordLength)
	fmt.Fprintf(bw, "seedspans=%s\n", joinInts(m.SeedSpans))
	for _, line := range m.SubsetSeeds {
		fmt.Fprintf(bw, "subsetseed=%s\n", line)
	}
	fmt.Fprintf(bw, "cumulativecounts=%s\n", joinUints(m.CumulativeCounts))
	fmt.Fprintf(bw, "bucketdepths=%s\n", joinInts(m.BucketDepths))
	fmt.Fprintf(bw, "posbytes=%d\n", m.PosBytes)
	fmt.Fprintf(bw, "childtabletype=%d\n", m.ChildTableType)
	for _, suffix := range []string{"suf", "bck", "tis", "chi", "kid", "chb"} {
		if sum, ok := m.Checksums[suffix]; ok {
			fmt.Fprintf(bw, "checksum_%s=%d\n", suffix, sum)
		}
	}
	return bw.Flush()
}

// ReadManifest parses a .prj file.
func ReadManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{Volumes: -1, Checksums: map[string]uint64{}}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key, value := line[:eq], line[eq+1:]
		var err error
		switch {
		case key == "version":
			m.Version, err = strconv.Atoi(value)
		case key == "alphabet":
			m.Alphabet = value
		case key == "numofsequences":
			m.NumOfSequences, err = strconv.ParseUint(value, 10, 64)
		case key == "numofletters":
			m.NumOfLetters, err = strconv.ParseUint(value, 10, 64)
		case key == "masklowercase":
			m.MaskLowercase, err = strconv.Atoi(value)
		case key == "sequenceformat":
			m.SequenceFormat, err = strconv.Atoi(value)
		case key == "volumes":
			m.Volumes, err = strconv.Atoi(value)
		case key == "wordlength":
			m.WordLength, err = strconv.Atoi(value)
		case key == "seedspans":
			m.SeedSpans, err = splitInts(value)
		case key == "subsetseed":
			m.SubsetSeeds = append(m.SubsetSeeds, value)
		case key == "cumulativecounts":
			m.CumulativeCounts, err = splitUints(value)
		case key == "bucketdepths":
			m.BucketDepths, err = splitInts(value)
		case key == "posbytes":
			m.PosBytes, err = strconv.Atoi(value)
		case key == "childtabletype":
			m.ChildTableType, err = strconv.Atoi(value)
		case strings.HasPrefix(key, "checksum_"):
			m.Checksums[key[len("checksum_"):]], err = strconv.ParseUint(value, 10, 64)
		}
		if err != nil {
			return nil, errors.E(err, "index: bad manifest line "+line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if m.Alphabet == "" || m.Volumes < 0 {
		return nil, errors.New("index: can't read the manifest")
	}
	if m.Version < Version {
		return nil, errors.New("index: the database format is old: please re-build the index")
	}
	return m, nil
}

// Seeds reconstructs the subset seeds recorded in the manifest.
func (m *Manifest) Seeds(a *alphabet.Alphabet) ([]*seed.Seed, error) {
	spans := m.SeedSpans
	if len(spans) == 0 {
		spans = []int{len(m.SubsetSeeds)}
	}
	var seeds []*seed.Seed
	lines := m.SubsetSeeds
	for _, span := range spans {
		if span <= 0 || span > len(lines) {
			return nil, errors.New("index: bad seed spans in manifest")
		}
		s := &seed.Seed{}
		for _, line := range lines[:span] {
			if err := s.AppendPosition(line, m.MaskLowercase > 0, a); err != nil {
				return nil, err
			}
		}
		lines = lines[span:]
		seeds = append(seeds, s)
	}
	if len(seeds) == 0 {
		return nil, errors.New("index: no subset seed in manifest")
	}
	return seeds, nil
}

func writeBlob(name string, data []byte, checksums map[string]uint64, suffix string) error {
	checksums[suffix] = util.Checksum(data)
	return ioutil.WriteFile(name, data, 0666)
}

// ToFiles writes the suffix array's blobs next to baseName, recording
// their checksums into the manifest.
func (x *SuffixArray) ToFiles(baseName string, m *Manifest) error {
	m.CumulativeCounts = x.cumulativeCounts
	m.BucketDepths = make([]int, len(x.bucketSteps))
	for i, steps := range x.bucketSteps {
		m.BucketDepths[i] = len(steps) - 1
	}
	m.PosBytes = x.posParts
	m.SeedSpans = make([]int, len(x.seeds))
	m.SubsetSeeds = nil
	for i, s := range x.seeds {
		m.SeedSpans[i] = s.Span()
		for p := 0; p < s.Span(); p++ {
			var b strings.Builder
			if err := s.WritePosition(&b, p); err != nil {
				return err
			}
			m.SubsetSeeds = append(m.SubsetSeeds, b.String())
		}
	}
	switch {
	case x.childTable != nil:
		m.ChildTableType = ChildFull
	case x.kiddyTable != nil:
		m.ChildTableType = ChildKiddy
	case x.chibiTable != nil:
		m.ChildTableType = ChildChibi
	default:
		m.ChildTableType = ChildNone
	}

	if err := writeBlob(baseName+".suf", x.positions, m.Checksums, "suf"); err != nil {
		return err
	}
	if err := writeBlob(baseName+".bck", x.buckets, m.Checksums, "bck"); err != nil {
		return err
	}
	switch {
	case x.childTable != nil:
		if err := util.WriteUint64s(baseName+".chi", x.childTable); err != nil {
			return err
		}
	case x.kiddyTable != nil:
		buf := make([]byte, 2*len(x.kiddyTable))
		for i, v := range x.kiddyTable {
			buf[2*i] = byte(v)
			buf[2*i+1] = byte(v >> 8)
		}
		if err := writeBlob(baseName+".kid", buf, m.Checksums, "kid"); err != nil {
			return err
		}
	case x.chibiTable != nil:
		if err := writeBlob(baseName+".chb", x.chibiTable, m.Checksums, "chb"); err != nil {
			return err
		}
	}
	return nil
}

func checkBlob(m *Manifest, suffix string, data []byte) error {
	want, ok := m.Checksums[suffix]
	if !ok {
		return nil
	}
	if got := util.Checksum(data); got != want {
		return fmt.Errorf("index: corrupt index file .%s (checksum mismatch)", suffix)
	}
	return nil
}

// FromFiles memory-maps the suffix array blobs of baseName, shaped by the
// manifest.  The returned SuffixArray is read-only; it may be shared
// across goroutines without locking.
func FromFiles(baseName string, m *Manifest, a *alphabet.Alphabet) (*SuffixArray, error) {
	seeds, err := m.Seeds(a)
	if err != nil {
		return nil, err
	}
	x := &SuffixArray{
		seeds:            seeds,
		posParts:         m.PosBytes,
		cumulativeCounts: m.CumulativeCounts,
	}
	if x.posParts != posParts4 && x.posParts != posParts5 {
		return nil, errors.New("index: bad posbytes in manifest")
	}
	if len(x.cumulativeCounts) != len(seeds) {
		return nil, errors.New("index: bad cumulativecounts in manifest")
	}

	suf, err := util.MapFile(baseName + ".suf")
	if err != nil {
		return nil, errors.E(err, "index: unreadable index")
	}
	x.positions = suf.Data
	if uint64(len(x.positions)) != x.NumPositions()*uint64(x.posParts) {
		return nil, errors.New("index: truncated .suf file")
	}
	if err := checkBlob(m, "suf", x.positions); err != nil {
		return nil, err
	}

	bck, err := util.MapFile(baseName + ".bck")
	if err != nil {
		return nil, errors.E(err, "index: unreadable index")
	}
	x.buckets = bck.Data
	if err := checkBlob(m, "bck", x.buckets); err != nil {
		return nil, err
	}

	if len(m.BucketDepths) != len(seeds) {
		return nil, errors.New("index: bad bucketdepths in manifest")
	}
	x.bucketSteps = make([][]uint64, len(seeds))
	x.bucketEnds = make([]uint64, len(seeds)+1)
	totalCells := uint64(0)
	for i, s := range seeds {
		x.bucketSteps[i] = makeBucketSteps(s, m.BucketDepths[i], m.WordLength)
		x.bucketEnds[i] = totalCells
		totalCells += x.bucketSteps[i][0]
	}
	x.bucketEnds[len(seeds)] = totalCells
	if uint64(len(x.buckets)) != (totalCells+1)*uint64(x.posParts) {
		return nil, errors.New("index: truncated .bck file")
	}

	switch m.ChildTableType {
	case ChildFull:
		chi, err := util.MapFile(baseName + ".chi")
		if err != nil {
			return nil, errors.E(err, "index: unreadable index")
		}
		x.childTable, err = util.Uint64s(chi.Data)
		if err != nil {
			return nil, err
		}
	case ChildKiddy:
		kid, err := util.MapFile(baseName + ".kid")
		if err != nil {
			return nil, errors.E(err, "index: unreadable index")
		}
		if err := checkBlob(m, "kid", kid.Data); err != nil {
			return nil, err
		}
		x.kiddyTable = make([]uint16, len(kid.Data)/2)
		for i := range x.kiddyTable {
			x.kiddyTable[i] = uint16(kid.Data[2*i]) | uint16(kid.Data[2*i+1])<<8
		}
	case ChildChibi:
		chb, err := util.MapFile(baseName + ".chb")
		if err != nil {
			return nil, errors.E(err, "index: unreadable index")
		}
		if err := checkBlob(m, "chb", chb.Data); err != nil {
			return nil, err
		}
		x.chibiTable = chb.Data
	}

	if x.hasChildTable() {
		n := x.NumPositions()
		var have uint64
		switch {
		case x.childTable != nil:
			have = uint64(len(x.childTable))
		case x.kiddyTable != nil:
			have = uint64(len(x.kiddyTable))
		default:
			have = uint64(len(x.chibiTable))
		}
		if have != n {
			return nil, errors.New("index: truncated child-table file")
		}
	}
	return x, nil
}

// RemoveFiles deletes a database's blobs; it ignores files that were never
// written.
func RemoveFiles(baseName string) {
	for _, suffix := range []string{".prj", ".suf", ".bck", ".tis", ".des", ".sds", ".ssp", ".chi", ".kid", ".chb"} {
		_ = os.Remove(baseName + suffix)
	}
}
