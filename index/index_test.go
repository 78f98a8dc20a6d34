package index

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/grailbio/last/alphabet"
	"github.com/grailbio/last/seed"
)

func dnaSetup(t *testing.T, text string) (*alphabet.Alphabet, *seed.Seed, []byte) {
	a, err := alphabet.New(alphabet.DNA, false)
	assert.NoError(t, err)
	s, err := seed.FromString("A C G T", false, a)
	assert.NoError(t, err)
	buf := []byte(text)
	a.Tr(buf, true)
	return a, s, buf
}

func buildIndex(t *testing.T, text []byte, a *alphabet.Alphabet, s *seed.Seed,
	opts BuildOpts) *SuffixArray {
	finder, err := seed.NewWordsFinder([]*seed.Seed{s}, 0)
	assert.NoError(t, err)
	return Build(text, []*seed.Seed{s}, finder, &a.ToUppercase, opts)
}

// checkSorted verifies the suffix-order invariant of the whole array.
func checkSorted(t *testing.T, x *SuffixArray, text []byte, s *seed.Seed) {
	for i := uint64(1); i < x.NumPositions(); i++ {
		p := x.posGet(i - 1)
		q := x.posGet(i)
		expect.False(t, s.IsLess(text[q:], text[p:], s.FirstMap()),
			"positions %d and %d out of order", p, q)
	}
}

func TestBuildAndMatch(t *testing.T) {
	a, s, text := dnaSetup(t, " ACGTACGTACGTACGT ")
	x := buildIndex(t, text, a, s, DefaultBuildOpts)

	expect.EQ(t, x.NumPositions(), uint64(16))
	checkSorted(t, x, text, s)

	query := []byte("ACGT ")
	a.Tr(query, true)

	// Depth 1: all suffixes starting with A.
	beg, end, depth := x.Match(query, text, 0, 100, 1, 1)
	expect.EQ(t, depth, uint64(1))
	expect.EQ(t, end-beg, uint64(4))
	for _, p := range x.Positions(beg, end) {
		expect.EQ(t, text[p], a.Encode['A'])
	}

	// Tight maxHits drives the match deeper.
	beg, end, depth = x.Match(query, text, 0, 1, 1, 100)
	expect.True(t, depth > 1)
	expect.True(t, end-beg <= 1 || depth == 100)
	for _, p := range x.Positions(beg, end) {
		expect.EQ(t, string(a.RT(nil, text[p:p+depth])), "ACGT"[:depth])
	}
}

func TestCountMatches(t *testing.T) {
	a, s, text := dnaSetup(t, " ACGTACGTACGTACGT ")
	x := buildIndex(t, text, a, s, DefaultBuildOpts)

	query := []byte("ACGTACGTACGTACGT ")
	a.Tr(query, true)
	counts := x.CountMatches(nil, query, text, 0, 1000)

	// Depth 0 counts every sampled position.
	expect.EQ(t, counts[0], x.NumPositions())
	// The histogram is non-increasing: deeper matches are subsets.
	for d := 1; d < len(counts); d++ {
		expect.True(t, counts[d] <= counts[d-1],
			"counts grew at depth %d: %v", d, counts)
	}
	// Four full occurrences of ACGT.
	expect.EQ(t, counts[4], uint64(4))
}

func TestMatchDelimiter(t *testing.T) {
	a, s, text := dnaSetup(t, " ACGTACGTACGTACGT ")
	x := buildIndex(t, text, a, s, DefaultBuildOpts)

	query := []byte(" ")
	a.Tr(query, true)
	beg, end, _ := x.Match(query, text, 0, 100, 1, 100)
	expect.EQ(t, end-beg, uint64(0))
}

func TestChildTableVariantsAgree(t *testing.T) {
	const textStr = " ACGTACGGTTACGTACGGAACCGGTTACGT "
	for _, childType := range []int{ChildNone, ChildChibi, ChildKiddy, ChildFull} {
		a, s, text := dnaSetup(t, textStr)
		opts := DefaultBuildOpts
		opts.ChildTableType = childType
		x := buildIndex(t, text, a, s, opts)
		checkSorted(t, x, text, s)

		query := []byte("ACGTACG ")
		a.Tr(query, true)
		for _, maxHits := range []uint64{0, 1, 2, 100} {
			beg, end, depth := x.Match(query, text, 0, maxHits, 1, 7)
			// Every reported position matches the query prefix at the
			// returned depth.
			for _, p := range x.Positions(beg, end) {
				for d := uint64(0); d < depth; d++ {
					expect.EQ(t, a.ToUppercase[text[p+d]], a.ToUppercase[query[d]],
						"childType %d maxHits %d", childType, maxHits)
				}
			}
			expect.True(t, end-beg <= maxHits || depth == 7,
				"childType %d: %d hits at depth %d", childType, end-beg, depth)
		}
	}
}

func TestMultiThreadedSortAgrees(t *testing.T) {
	long := strings.Repeat("ACGGTTACGTAACCGT", 40)
	a, s, text := dnaSetup(t, " "+long+" ")

	opts := DefaultBuildOpts
	opts.NumThreads = 1
	x1 := buildIndex(t, text, a, s, opts)
	opts.NumThreads = 4
	x4 := buildIndex(t, text, a, s, opts)

	assert.EQ(t, x1.NumPositions(), x4.NumPositions())
	checkSorted(t, x4, text, s)
	for i := uint64(0); i < x1.NumPositions(); i++ {
		// Equal suffixes may permute within ties, so compare match results
		// rather than raw positions.
		_ = i
	}
	query := []byte("ACGGTT ")
	a.Tr(query, true)
	b1, e1, d1 := x1.Match(query, text, 0, 5, 1, 6)
	b4, e4, d4 := x4.Match(query, text, 0, 5, 1, 6)
	expect.EQ(t, e1-b1, e4-b4)
	expect.EQ(t, d1, d4)
}

func TestIndexFilesRoundTrip(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	a, s, text := dnaSetup(t, " ACGTACGGTTACGTACGG ")
	opts := DefaultBuildOpts
	opts.ChildTableType = ChildKiddy
	x := buildIndex(t, text, a, s, opts)

	base := tempDir + "/db"
	m := &Manifest{
		Version:        Version,
		Alphabet:       a.Letters,
		NumOfSequences: 1,
		NumOfLetters:   18,
		Volumes:        1,
		Checksums:      map[string]uint64{},
	}
	assert.NoError(t, x.ToFiles(base, m))

	var sb strings.Builder
	assert.NoError(t, m.Write(&sb))
	back, err := ReadManifest(strings.NewReader(sb.String()))
	assert.NoError(t, err)
	expect.EQ(t, back.Alphabet, "ACGT")
	expect.EQ(t, back.CumulativeCounts, x.cumulativeCounts)

	y, err := FromFiles(base, back, a)
	assert.NoError(t, err)
	expect.EQ(t, y.NumPositions(), x.NumPositions())

	query := []byte("ACGT ")
	a.Tr(query, true)
	b1, e1, d1 := x.Match(query, text, 0, 2, 1, 4)
	b2, e2, d2 := y.Match(query, text, 0, 2, 1, 4)
	expect.EQ(t, b1, b2)
	expect.EQ(t, e1, e2)
	expect.EQ(t, d1, d2)
}

func TestManifestVersionCheck(t *testing.T) {
	_, err := ReadManifest(strings.NewReader("version=0\nalphabet=ACGT\nvolumes=1\n"))
	expect.NotNil(t, err)
}

func TestMaxUnsortedInterval(t *testing.T) {
	a, s, text := dnaSetup(t, " ACGTACGTACGTACGT ")
	opts := DefaultBuildOpts
	opts.MaxUnsortedInterval = 4
	x := buildIndex(t, text, a, s, opts)

	// Shallow matches still work: the delimiter-free descent only needs
	// ranges above the unsorted threshold to be ordered.
	query := []byte("ACGT ")
	a.Tr(query, true)
	beg, end, _ := x.Match(query, text, 0, 100, 1, 1)
	expect.EQ(t, end-beg, uint64(4))
}
