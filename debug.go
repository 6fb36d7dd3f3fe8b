package fstreedb

import (
	"fmt"
	"slices"
	"strings"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpData
	DumpChildren

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var dumpSep = strings.Repeat("=", 80)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump lists the stored entries in key order, which is tree pre-order.
func (db *DB) Dump(f DumpFlags) (string, error) {
	var buf strings.Builder
	err := db.Read(func(rtx ReadTxn) error {
		tx := rtx.(*txn)
		for _, ns := range namespaces {
			if ns == Data && !f.Contains(DumpData) || ns == Children && !f.Contains(DumpChildren) {
				continue
			}
			db.dumpNamespace(&buf, f, tx, ns)
		}
		return nil
	})
	return buf.String(), err
}

func (db *DB) dumpNamespace(w *strings.Builder, f DumpFlags, tx *txn, ns Namespace) {
	if f.Contains(DumpHeaders) {
		fmt.Fprintln(w, dumpSep)
		fmt.Fprintf(w, "%s (%d entries)\n", ns, tx.bucket(ns).Stats().Keys)
	}
	tx.scan(ns, nil, func(k, v []byte) bool {
		c, err := db.schema.Resolve(k)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", hexstr(k), err)
			return true
		}
		fmt.Fprintf(w, "%s %s\n", c.String(), db.describeEntry(ns, c, v))
		return true
	})
}

func (db *DB) describeEntry(ns Namespace, c Chain, data []byte) string {
	switch ns {
	case Data:
		var val value
		if err := val.decode(data); err != nil {
			return "ERR: " + err.Error()
		}
		name := "?"
		if vc := c.Last().Type().Data(); vc != nil && val.Version < uint64(vc.Len()) {
			name = vc.versions[val.Version].typeName
		}
		return fmt.Sprintf("v%d %s (%d bytes)", val.Version, name, len(val.Payload))
	case Children:
		r, err := decodeReservoir(data, db.childrenLimitFor(c.Last().Type()))
		if err != nil {
			return "ERR: " + err.Error()
		}
		segs := r.Items()
		slices.Sort(segs)
		strs := make([]string, len(segs))
		for i, seg := range segs {
			strs[i] = string(seg)
		}
		return fmt.Sprintf("[%s] (%d of %d)", strings.Join(strs, ", "), len(segs), r.Count())
	default:
		return hexstr(data)
	}
}
