package safe

import (
	"github.com/ethereum/go-ethereum/common"
)

// Sentinel is the address the contract uses as the head and tail marker of the
// owner and module lists. It is returned as the predecessor of the first entry.
var Sentinel = common.HexToAddress("0x1")

// entryErrors binds the revert reasons of one list (owners or modules).
type entryErrors struct {
	invalid   error
	duplicate error
	prev      error
}

var (
	ownerErrors  = entryErrors{invalid: ErrInvalidOwner, duplicate: ErrDuplicateOwner, prev: ErrInvalidPrevOwner}
	moduleErrors = entryErrors{invalid: ErrInvalidModule, duplicate: ErrDuplicateModule, prev: ErrInvalidPrevModule}
)

// entryList keeps the order the contract's sentinel-terminated linked list
// would have, with lookups by address instead of pointer chasing.
type entryList struct {
	entries []common.Address
	index   map[common.Address]int
	errs    entryErrors
}

func newEntryList(errs entryErrors) *entryList {
	return &entryList{
		index: map[common.Address]int{},
		errs:  errs,
	}
}

func (l *entryList) clone() *entryList {
	c := newEntryList(l.errs)
	c.entries = append(c.entries, l.entries...)
	for k, v := range l.index {
		c.index[k] = v
	}
	return c
}

func (l *entryList) Len() int {
	return len(l.entries)
}

func (l *entryList) Contains(a common.Address) bool {
	_, ok := l.index[a]
	return ok
}

// Entries returns the list in traversal order.
func (l *entryList) Entries() []common.Address {
	out := make([]common.Address, len(l.entries))
	copy(out, l.entries)
	return out
}

// Prev finds the predecessor of a, which is Sentinel for the first entry.
func (l *entryList) Prev(a common.Address) (common.Address, bool) {
	i, ok := l.index[a]
	if !ok {
		return common.Address{}, false
	}
	if i == 0 {
		return Sentinel, true
	}
	return l.entries[i-1], true
}

func (l *entryList) checkNew(a common.Address) error {
	if a == (common.Address{}) || a == Sentinel {
		return l.errs.invalid
	}
	if l.Contains(a) {
		return l.errs.duplicate
	}
	return nil
}

// Append adds an entry to the tail, the way setup links the initial owners.
func (l *entryList) Append(a common.Address) error {
	if err := l.checkNew(a); err != nil {
		return err
	}
	l.index[a] = len(l.entries)
	l.entries = append(l.entries, a)
	return nil
}

// InsertHead adds an entry right after the sentinel.
func (l *entryList) InsertHead(a common.Address) error {
	if err := l.checkNew(a); err != nil {
		return err
	}
	l.entries = append([]common.Address{a}, l.entries...)
	l.reindex()
	return nil
}

// checkPair validates the caller supplied (prev, entry) pair.
func (l *entryList) checkPair(prev, a common.Address) (int, error) {
	if a == (common.Address{}) || a == Sentinel {
		return 0, l.errs.invalid
	}
	actual, ok := l.Prev(a)
	if !ok || actual != prev {
		return 0, l.errs.prev
	}
	return l.index[a], nil
}

// Remove unlinks a. prev has to be its current predecessor.
func (l *entryList) Remove(prev, a common.Address) error {
	i, err := l.checkPair(prev, a)
	if err != nil {
		return err
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	l.reindex()
	return nil
}

// Replace puts next in the position of old. prev has to be old's current predecessor.
func (l *entryList) Replace(prev, old, next common.Address) error {
	if err := l.checkNew(next); err != nil {
		return err
	}
	i, err := l.checkPair(prev, old)
	if err != nil {
		return err
	}
	delete(l.index, old)
	l.entries[i] = next
	l.index[next] = i
	return nil
}

func (l *entryList) reindex() {
	l.index = make(map[common.Address]int, len(l.entries))
	for i, a := range l.entries {
		l.index[a] = i
	}
}

// PrevEntry finds the predecessor pointer for entry in a list as returned by
// getOwners or getModules.
func PrevEntry(list []common.Address, entry common.Address) (common.Address, bool) {
	for i, a := range list {
		if a != entry {
			continue
		}
		if i == 0 {
			return Sentinel, true
		}
		return list[i-1], true
	}
	return common.Address{}, false
}
