package addressbook

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type AttachedAccountType string

const (
	SafeAccountType   AttachedAccountType = "safe"
	ManualAccountType AttachedAccountType = "manual"
	TokenAccountType  AttachedAccountType = "token"
)

const (
	SafeWeight   = 1000
	TokenWeight  = 500
	ManualWeight = 100
	// BoostForOriginalName ranks the unrotated name above its variants.
	BoostForOriginalName = 50
)

// AttachedAccount is a searchable name of a known address.
type AttachedAccount struct {
	Name       string              `json:"name"`
	Wallet     common.Address      `json:"address"`
	Type       AttachedAccountType `json:"type"`
	Weight     int64               `json:"-"`
	Normalized string              `json:"-"`
}

// newAttachedAccounts creates one entry per name variant.
func newAttachedAccounts(name string, address common.Address, accountType AttachedAccountType) []AttachedAccount {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	var weight int64
	var display string
	switch accountType {
	case SafeAccountType:
		weight = SafeWeight
		display = fmt.Sprintf("%v · safe", name)
	case TokenAccountType:
		weight = TokenWeight
		display = fmt.Sprintf("%v · token", name)
	default:
		weight = ManualWeight
		display = fmt.Sprintf("%v · account", name)
	}
	var out []AttachedAccount
	for i, variant := range GenerateNameVariants(name) {
		w := weight
		if i == 0 {
			w += BoostForOriginalName
		}
		out = append(out, AttachedAccount{
			Name:       display,
			Wallet:     address,
			Type:       accountType,
			Weight:     w,
			Normalized: normalize(variant),
		})
	}
	return out
}

// GenerateNameVariants generates name variants by rotating the words
func GenerateNameVariants(name string) []string {
	words := strings.Fields(name)
	var variants []string
	// up to 3 variants
	for i := 0; i < len(words) && i < 3; i++ {
		variant := append(append([]string{}, words[i:]...), words[:i]...)
		variants = append(variants, strings.Join(variant, " "))
	}
	return variants
}

// FindIndexes finds the start and end indexes of the prefix in the sorted list
func FindIndexes(sortedList []AttachedAccount, prefix string) (int, int) {
	low, high := 0, len(sortedList)-1
	startIdx := -1
	for low <= high {
		med := (low + high) / 2
		if strings.HasPrefix(sortedList[med].Normalized, prefix) {
			startIdx = med
			high = med - 1
		} else if sortedList[med].Normalized < prefix {
			low = med + 1
		} else {
			high = med - 1
		}
	}
	if startIdx == -1 {
		return -1, -1
	}
	low, high = startIdx, len(sortedList)-1
	endIdx := -1
	for low <= high {
		med := (low + high) / 2
		if strings.HasPrefix(sortedList[med].Normalized, prefix) {
			endIdx = med
			low = med + 1
		} else {
			high = med - 1
		}
	}
	return startIdx, endIdx
}
