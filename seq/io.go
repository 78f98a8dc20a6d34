package seq

import (
	"io/ioutil"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/last/util"
)

// ToFiles writes the finished sequences to binary files next to baseName:
// the encoded text image (.tis), the name bytes (.des), the name offsets
// (.sds) and the sequence end offsets (.ssp).
func (m *MultiSequence) ToFiles(baseName string) error {
	if err := ioutil.WriteFile(baseName+".tis", m.Seq[:m.FinishedSize()], 0666); err != nil {
		return err
	}
	if err := ioutil.WriteFile(baseName+".des", m.names, 0666); err != nil {
		return err
	}
	if err := util.WriteUint64s(baseName+".sds", m.nameEnds); err != nil {
		return err
	}
	return util.WriteUint64s(baseName+".ssp", m.ends[:len(m.nameEnds)])
}

// FromFiles reads seqCount finished sequences back from binary files.  The
// text image is memory-mapped read-only, so the result must not be
// modified.
func FromFiles(baseName string, seqCount uint64, padSize int) (*MultiSequence, error) {
	m := &MultiSequence{padSize: padSize}

	tis, err := util.MapFile(baseName + ".tis")
	if err != nil {
		return nil, errors.E(err, "seq: unreadable sequence file")
	}
	m.Seq = tis.Data

	des, err := util.MapFile(baseName + ".des")
	if err != nil {
		return nil, errors.E(err, "seq: unreadable sequence file")
	}
	m.names = des.Data

	sds, err := util.MapFile(baseName + ".sds")
	if err != nil {
		return nil, errors.E(err, "seq: unreadable sequence file")
	}
	m.nameEnds, err = util.Uint64s(sds.Data)
	if err != nil {
		return nil, err
	}

	ssp, err := util.MapFile(baseName + ".ssp")
	if err != nil {
		return nil, errors.E(err, "seq: unreadable sequence file")
	}
	m.ends, err = util.Uint64s(ssp.Data)
	if err != nil {
		return nil, err
	}

	if uint64(len(m.ends)) != seqCount+1 || len(m.nameEnds) != len(m.ends) {
		return nil, errors.New("seq: sequence file doesn't match its manifest")
	}
	if m.FinishedSize() != uint64(len(m.Seq)) {
		return nil, errors.New("seq: truncated sequence file")
	}
	return m, nil
}
