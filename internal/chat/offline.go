package chat

import (
	"context"
	"fmt"
	"strings"
)

// Offline answers from a fixed set of replies when no model is configured.
type Offline struct{}

// Name implements Backend.
func (Offline) Name() string { return "offline" }

var offlineTopics = []struct {
	keywords []string
	reply    string
}{
	{[]string{"movevm", "move vm"}, "MoveVM runs Move bytecode with resource safety built in: assets can't be copied or dropped by accident."},
	{[]string{"m2", "evm"}, "M2 brings Move to Ethereum: you keep EVM tooling while Move contracts execute alongside it."},
	{[]string{"aptos"}, "Movement is Aptos-compatible, so Move modules written for Aptos port over with minimal changes."},
	{[]string{"fast", "speed", "sequencer"}, "Movement is fast because decentralized sequencers order transactions in parallel before settlement."},
	{[]string{"level", "xp", "nft"}, "Every query and transaction earns XP for your Nero NFT. Level up to unlock Advanced Move Analytics!"},
}

// Reply implements Backend.
func (Offline) Reply(_ context.Context, req Request) (string, error) {
	_, last := req.split()
	text := strings.ToLower(last)
	for _, t := range offlineTopics {
		for _, k := range t.keywords {
			if strings.Contains(text, k) {
				return t.reply, nil
			}
		}
	}
	where := "Movement"
	if req.Platform.Name != "" {
		where = req.Platform.Name
	}
	return fmt.Sprintf("Meow! I'm Nero, your level %d companion on %s. Ask me about Move, MoveVM or M2!", int(req.Level), where), nil
}
