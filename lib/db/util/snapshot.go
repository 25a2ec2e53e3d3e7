package util

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/dBandit/lib/db"
)

// --------------------------------------------------------------------------
// Snapshot format
// --------------------------------------------------------------------------

// Snapshot layout (little endian):
//
//	magic   [8]byte  "DBANDIT\x00"
//	version uint8
//	count   uint64
//	entries count x {
//	    kind  uint8   (db.KindHash | db.KindSet)
//	    key   string  (uint32 length + bytes)
//	    n     uint32
//	    hash: n x {field string, value string}
//	    set:  n x {member string}
//	}
const (
	snapshotMagic   = "DBANDIT\x00"
	snapshotVersion = 1
	bufferSize      = 1024 * 1024 // 1 MB
)

// SnapshotEntry is a single key of a snapshot.
// Fields is used for db.KindHash entries, Members for db.KindSet entries.
type SnapshotEntry struct {
	Key     string
	Kind    db.Kind
	Fields  map[string]string
	Members []string
}

// WriteSnapshot encodes entries to w.
func WriteSnapshot(w io.Writer, entries []SnapshotEntry) error {
	bw := bufio.NewWriterSize(w, bufferSize)

	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := bw.WriteByte(snapshotVersion); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := bw.WriteByte(byte(e.Kind)); err != nil {
			return err
		}
		if err := writeString(bw, e.Key); err != nil {
			return err
		}

		switch e.Kind {
		case db.KindHash:
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.Fields))); err != nil {
				return err
			}
			for field, value := range e.Fields {
				if err := writeString(bw, field); err != nil {
					return err
				}
				if err := writeString(bw, value); err != nil {
					return err
				}
			}
		case db.KindSet:
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.Members))); err != nil {
				return err
			}
			for _, member := range e.Members {
				if err := writeString(bw, member); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("snapshot: key %q has unsupported kind %s", e.Key, e.Kind)
		}
	}

	return bw.Flush()
}

// ReadSnapshot decodes a snapshot from r and calls fn for every entry in order.
// Decoding stops at the first error returned by fn.
func ReadSnapshot(r io.Reader, fn func(SnapshotEntry) error) error {
	br := bufio.NewReaderSize(r, bufferSize)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return err
	}
	if string(magic) != snapshotMagic {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	version, err := br.ReadByte()
	if err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, snapshotVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	for i := uint64(0); i < count; i++ {
		kind, err := br.ReadByte()
		if err != nil {
			return err
		}
		key, err := readString(br)
		if err != nil {
			return err
		}
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return err
		}

		entry := SnapshotEntry{Key: key, Kind: db.Kind(kind)}
		switch entry.Kind {
		case db.KindHash:
			entry.Fields = make(map[string]string, n)
			for j := uint32(0); j < n; j++ {
				field, err := readString(br)
				if err != nil {
					return err
				}
				value, err := readString(br)
				if err != nil {
					return err
				}
				entry.Fields[field] = value
			}
		case db.KindSet:
			entry.Members = make([]string, 0, n)
			for j := uint32(0); j < n; j++ {
				member, err := readString(br)
				if err != nil {
					return err
				}
				entry.Members = append(entry.Members, member)
			}
		default:
			return fmt.Errorf("snapshot: key %q has unsupported kind %d", key, kind)
		}

		if err := fn(entry); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeString(w *bufio.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
