// Package blocklist reads and writes the external seed block-list CSV and
// classifies which entries count as "bad" for PageRank personalization
// (spec ยง3, ยง4.1). It is grounded on the same read-parse-merge-write shape
// as the Python blocklist.BlockList this spec was distilled from.
package blocklist

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Bad reason kinds, the closed enumeration from spec ยง3.
const (
	ReasonMisleading = "com.atproto.moderation.defs#reasonMisleading"
	ReasonRude       = "com.atproto.moderation.defs#reasonRude"
	ReasonSexual     = "com.atproto.moderation.defs#reasonSexual"
	ReasonSpam       = "com.atproto.moderation.defs#reasonSpam"
	ReasonViolation  = "com.atproto.moderation.defs#reasonViolation"
)

var badReasonTypes = map[string]bool{
	ReasonMisleading: true,
	ReasonRude:       true,
	ReasonSexual:     true,
	ReasonSpam:       true,
	ReasonViolation:  true,
}

// Item is one entry in the block list.
type Item struct {
	Index      int
	DID        string
	ReasonType string
	Reason     string
}

// mergeWith applies the merge rule of spec ยง3: reasons are joined by ',';
// if the incoming reason kind differs from the stored one, it is
// annotated in parentheses before its reason text; the first non-empty
// reason_type wins.
func (it *Item) mergeWith(reasonKind, reason string) {
	if reason != "" {
		if it.Reason != "" {
			it.Reason += ","
		}
		if it.ReasonType != "" && reasonKind != "" && reasonKind != it.ReasonType {
			it.Reason += fmt.Sprintf("(%s)", reasonKind)
		}
		it.Reason += reason
	}
	if it.ReasonType == "" {
		it.ReasonType = reasonKind
	}
}

// List is the in-memory, did-keyed block list of a single CSV file.
type List struct {
	path       string
	defaultBad bool
	lastIndex  int
	items      map[string]*Item
}

// Load reads the CSV at path. Rows whose first field does not begin with
// "did:" are skipped (spec ยง4.1). 2- or 3-column rows are tolerated: a
// 2-column row has no reason_type, and any trailing fields are joined into
// the reason with commas.
func Load(path string, defaultBad bool) (*List, error) {
	l := &List{
		path:       path,
		defaultBad: defaultBad,
		items:      make(map[string]*Item),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("open block list %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate 2- or 3-column rows

	lineIndex := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse block list %s: %w", path, err)
		}
		idx := lineIndex
		lineIndex++

		if len(row) == 0 || !strings.HasPrefix(row[0], "did:") {
			continue
		}

		var reasonKind, reason string
		if len(row) == 3 {
			reasonKind = row[1]
			reason = row[2]
		} else {
			var parts []string
			for _, s := range row[1:] {
				if s != "" {
					parts = append(parts, s)
				}
			}
			reason = strings.Join(parts, ",")
		}

		did := row[0]
		if existing, ok := l.items[did]; ok {
			existing.mergeWith(reasonKind, reason)
		} else {
			l.items[did] = &Item{Index: idx, DID: did, ReasonType: reasonKind, Reason: reason}
		}
	}
	l.lastIndex = lineIndex
	return l, nil
}

// Get returns the item for did, or nil if absent.
func (l *List) Get(did string) *Item {
	return l.items[did]
}

// Add inserts or merges a (did, reason_type, reason) triple (spec ยง4.1).
func (l *List) Add(did, reasonType, reason string) {
	if existing, ok := l.items[did]; ok {
		existing.mergeWith(reasonType, reason)
		return
	}
	l.items[did] = &Item{Index: l.lastIndex, DID: did, ReasonType: reasonType, Reason: reason}
	l.lastIndex++
}

// AnnotateRemoved prefixes the reason of did with "(account removed)",
// preserving prior content, unless already annotated (spec ยง7, ยง8
// scenario 4). It is a no-op if did is not present.
func (l *List) AnnotateRemoved(did string) {
	const marker = "(account removed)"
	item, ok := l.items[did]
	if !ok {
		return
	}
	if strings.Contains(item.Reason, marker) {
		return
	}
	item.Reason = marker + item.Reason
}

// BadDIDs returns the subset of DIDs whose reason_type is one of the five
// enumerated moderation kinds, plus (if defaultBad) those with an empty
// reason_type.
func (l *List) BadDIDs() map[string]bool {
	out := make(map[string]bool, len(l.items))
	for did, item := range l.items {
		if badReasonTypes[item.ReasonType] || (l.defaultBad && item.ReasonType == "") {
			out[did] = true
		}
	}
	return out
}

// Write serializes entries sorted by Index, 3 columns per row, to l.path.
func (l *List) Write() error {
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("create block list %s: %w", l.path, err)
	}
	defer f.Close()

	items := make([]*Item, 0, len(l.items))
	for _, it := range l.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })

	w := csv.NewWriter(f)
	for _, it := range items {
		if err := w.Write([]string{it.DID, it.ReasonType, it.Reason}); err != nil {
			return fmt.Errorf("write block list row for %s: %w", it.DID, err)
		}
	}
	w.Flush()
	return w.Error()
}
