package services

import (
	"fmt"
	"regexp"
	"sync"
)

var recordIDRe = regexp.MustCompile(`^.+-\d{10}(-\d+)?$`)

// IsRecordID reports whether q has the "<plate>-<unix seconds>" shape,
// optionally followed by a "-<n>" disambiguator.
func IsRecordID(q string) bool {
	return recordIDRe.MatchString(q)
}

// issuedTTL is how long, in seconds behind the newest timestamp seen, an
// issued base id is remembered.
const issuedTTL = 60

type issuedID struct {
	ts    int64
	count int
}

// recordIDIssuer hands out "<plate>-<ts>" ids. A repeat of the same base id
// gets "-2", "-3", ... appended, also when calls arrive out of timestamp
// order.
type recordIDIssuer struct {
	mu     sync.Mutex
	newest int64
	issued map[string]*issuedID
}

func newRecordIDIssuer() *recordIDIssuer {
	return &recordIDIssuer{issued: map[string]*issuedID{}}
}

func (i *recordIDIssuer) next(plate string, ts int64) string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if ts > i.newest {
		i.newest = ts
		i.prune()
	}

	base := fmt.Sprintf("%s-%d", plate, ts)
	e, ok := i.issued[base]
	if !ok {
		e = &issuedID{ts: ts}
		i.issued[base] = e
	}
	e.count++
	if e.count > 1 {
		return fmt.Sprintf("%s-%d", base, e.count)
	}
	return base
}

func (i *recordIDIssuer) prune() {
	for base, e := range i.issued {
		if i.newest-e.ts > issuedTTL {
			delete(i.issued, base)
		}
	}
}
