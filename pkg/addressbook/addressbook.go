// Package addressbook holds manually maintained information about safes,
// accounts and tokens, loaded from a YAML file.
package addressbook

import (
	"bytes"
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

// KnownSafe is a safe served by this instance.
type KnownSafe struct {
	Address common.Address `yaml:"address" json:"address"`
	Name    string         `yaml:"name" json:"name"`
	Tags    []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// KnownAddress labels an account, usually an owner or a frequent recipient.
type KnownAddress struct {
	Address common.Address `yaml:"address" json:"address"`
	Name    string         `yaml:"name" json:"name"`
	IsScam  bool           `yaml:"is_scam,omitempty" json:"is_scam,omitempty"`
}

// KnownToken describes an ERC-20 token.
type KnownToken struct {
	Address  common.Address `yaml:"address" json:"address"`
	Symbol   string         `yaml:"symbol" json:"symbol"`
	Name     string         `yaml:"name,omitempty" json:"name,omitempty"`
	Decimals int32          `yaml:"decimals" json:"decimals"`
}

type file struct {
	Safes    []KnownSafe    `yaml:"safes"`
	Accounts []KnownAddress `yaml:"accounts"`
	Tokens   []KnownToken   `yaml:"tokens"`
}

// Book holds information about known safes, accounts and tokens.
type Book struct {
	logger *zap.Logger
	path   string

	mu        sync.RWMutex
	safes     map[common.Address]KnownSafe
	addresses map[common.Address]KnownAddress
	tokens    map[common.Address]KnownToken
	// attached is sorted by Normalized for prefix search.
	attached []AttachedAccount
	raw      []byte
}

// NewAddressBook loads the book from path. An empty path gives an empty book.
func NewAddressBook(logger *zap.Logger, path string) (*Book, error) {
	book := &Book{
		logger:    logger,
		path:      path,
		safes:     map[common.Address]KnownSafe{},
		addresses: map[common.Address]KnownAddress{},
		tokens:    map[common.Address]KnownToken{},
	}
	if path == "" {
		return book, nil
	}
	if err := book.refresh(); err != nil {
		return nil, err
	}
	return book, nil
}

// Run reloads the file every interval until ctx is done.
func (b *Book) Run(ctx context.Context, interval time.Duration) {
	if b.path == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.refresh(); err != nil {
				b.logger.Warn("failed to reload address book", zap.String("path", b.path), zap.Error(err))
			}
		}
	}
}

func (b *Book) refresh() error {
	content, err := os.ReadFile(b.path)
	if err != nil {
		return err
	}
	b.mu.RLock()
	unchanged := bytes.Equal(content, b.raw)
	b.mu.RUnlock()
	if unchanged {
		return nil
	}
	return b.load(content)
}

func (b *Book) load(content []byte) error {
	var f file
	if err := yaml.Unmarshal(content, &f); err != nil {
		return errors.Wrap(err, "parse address book")
	}
	safes := make(map[common.Address]KnownSafe, len(f.Safes))
	addresses := make(map[common.Address]KnownAddress, len(f.Accounts))
	tokens := make(map[common.Address]KnownToken, len(f.Tokens))
	var attached []AttachedAccount
	for _, item := range f.Safes {
		safes[item.Address] = item
		attached = append(attached, newAttachedAccounts(item.Name, item.Address, SafeAccountType)...)
	}
	for _, item := range f.Accounts {
		addresses[item.Address] = item
		if !item.IsScam {
			attached = append(attached, newAttachedAccounts(item.Name, item.Address, ManualAccountType)...)
		}
	}
	for _, item := range f.Tokens {
		tokens[item.Address] = item
		attached = append(attached, newAttachedAccounts(item.Symbol, item.Address, TokenAccountType)...)
	}
	sort.Slice(attached, func(i, j int) bool {
		if attached[i].Normalized == attached[j].Normalized {
			return attached[i].Weight > attached[j].Weight
		}
		return attached[i].Normalized < attached[j].Normalized
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.safes, b.addresses, b.tokens, b.attached, b.raw = safes, addresses, tokens, attached, content
	return nil
}

// Safes returns the known safes ordered by name.
func (b *Book) Safes() []KnownSafe {
	b.mu.RLock()
	defer b.mu.RUnlock()
	safes := maps.Values(b.safes)
	sort.Slice(safes, func(i, j int) bool {
		if safes[i].Name == safes[j].Name {
			return bytes.Compare(safes[i].Address.Bytes(), safes[j].Address.Bytes()) < 0
		}
		return safes[i].Name < safes[j].Name
	})
	return safes
}

func (b *Book) GetSafe(a common.Address) (KnownSafe, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.safes[a]
	return s, ok
}

// GetAddressInfoByAddress returns the label of an account. Known safes are labelled too.
func (b *Book) GetAddressInfoByAddress(a common.Address) (KnownAddress, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if info, ok := b.addresses[a]; ok {
		return info, true
	}
	if s, ok := b.safes[a]; ok {
		return KnownAddress{Address: a, Name: s.Name}, true
	}
	return KnownAddress{}, false
}

func (b *Book) GetTokenInfo(a common.Address) (KnownToken, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tokens[a]
	return t, ok
}

// SearchAttachedAccountsByPrefix finds safes, accounts and tokens whose name starts with prefix.
func (b *Book) SearchAttachedAccountsByPrefix(prefix string) []AttachedAccount {
	prefix = normalize(prefix)
	if prefix == "" {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	start, end := FindIndexes(b.attached, prefix)
	if start == -1 {
		return nil
	}
	seen := map[common.Address]struct{}{}
	var found []AttachedAccount
	for _, account := range b.attached[start : end+1] {
		if _, ok := seen[account.Wallet]; ok {
			continue
		}
		seen[account.Wallet] = struct{}{}
		found = append(found, account)
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Weight > found[j].Weight
	})
	return found
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
