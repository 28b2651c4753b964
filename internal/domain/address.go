package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Purpose tags the role a derived record address plays. Each record kind gets
// its own tag so two records for the same owner can never collide.
type Purpose string

const (
	PurposePool    Purpose = "pool"
	PurposeVault   Purpose = "vault"
	PurposeRewards Purpose = "rewards"
	PurposeStake   Purpose = "stake"
	PurposeAccess  Purpose = "access"
	PurposeTier    Purpose = "tier"
	PurposeHolder  Purpose = "holder"
)

// DeriveAddress computes the canonical address for a record from its owner
// identity, purpose tag, and an optional salt. The same function runs at
// record creation and at validation, so a record presented at any other
// address is rejected rather than trusted.
func DeriveAddress(owner Address, purpose Purpose, salt string) Address {
	data := make([]byte, 0, len(purpose)+common.AddressLength+len(salt)+2)
	data = append(data, []byte(purpose)...)
	data = append(data, '|')
	data = append(data, common.HexToAddress(string(owner)).Bytes()...)
	data = append(data, '|')
	data = append(data, []byte(salt)...)

	hash := crypto.Keccak256(data)
	return Address(common.BytesToAddress(hash[12:]).String())
}
