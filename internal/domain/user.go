// Package domain contains core domain types for the Nero companion service.
package domain

import "time"

// ChainTypeEthereum is the only chain type issued by the simulated wallets.
const ChainTypeEthereum = "ethereum"

// WalletClientType names the software that controls a linked wallet.
type WalletClientType string

const (
	WalletClientEmbedded WalletClientType = "privy"
	WalletClientMetaMask WalletClientType = "metamask"
)

// WalletRef is the primary wallet attached to an authenticated user.
type WalletRef struct {
	Address   string `json:"address"`
	ChainType string `json:"chainType"`
}

// User is the identity produced by a successful login.
type User struct {
	ID          string      `json:"id"`
	Email       string      `json:"email,omitempty"`
	Wallet      *WalletRef  `json:"wallet,omitempty"`
	LoginMethod LoginMethod `json:"loginMethod"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Address returns the primary wallet address, or "" when none is linked.
func (u *User) Address() string {
	if u == nil || u.Wallet == nil {
		return ""
	}
	return u.Wallet.Address
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Wallet != nil {
		w := *u.Wallet
		c.Wallet = &w
	}
	return &c
}

// WalletDescriptor is one entry of the session's linked wallet list.
type WalletDescriptor struct {
	Address          string           `json:"address"`
	WalletClientType WalletClientType `json:"walletClientType"`
}
