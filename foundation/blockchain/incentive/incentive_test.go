package incentive_test

import (
	"testing"

	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/blockchain/incentive"
	"github.com/meshchain/ledger/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// stubChain is a minimal incentive.ChainAPI: it serves fixed blocks by
// height and records every entry submitted to it.
type stubChain struct {
	blocks    map[uint64]database.Block
	submitted []entry.Entry
}

func (s *stubChain) BlockAt(index uint64) (database.Block, bool) {
	b, ok := s.blocks[index]
	return b, ok
}

func (s *stubChain) SubmitEntry(e entry.Entry) error {
	s.submitted = append(s.submitted, e)
	return nil
}

func Test_ProcessBelowMinRewardHeightIsNoop(t *testing.T) {
	t.Log("Given the need to withhold a reward until a block is confirmed deep enough.")

	chainAPI := &stubChain{
		blocks: map[uint64]database.Block{0: {OwnerAddress: "miner-0"}},
	}
	inc := incentive.New(chainAPI, 50, nil)

	// confirmationLag is 6, so the earliest height at which a reward can be
	// due is 7. Height 6 is the last height at which it must still be a
	// no-op.
	if err := inc.Process(6); err != nil {
		t.Fatalf("\t%s\tShould not error below the minimum reward height: %s", failed, err)
	}

	if len(chainAPI.submitted) != 0 {
		t.Fatalf("\t%s\tShould not queue a reward entry at height 6, queued %d.", failed, len(chainAPI.submitted))
	}
	t.Logf("\t%s\tShould not queue a reward entry below the minimum reward height.", success)
}

func Test_ProcessAtMinRewardHeightCreditsCreator(t *testing.T) {
	t.Log("Given the need to credit a block's creator once it clears the confirmation lag.")

	chainAPI := &stubChain{
		blocks: map[uint64]database.Block{1: {OwnerAddress: "miner-1"}},
	}
	inc := incentive.New(chainAPI, 50, nil)

	// Height 7 is the first height at which the reward for the block at
	// height 7-6=1 is due.
	if err := inc.Process(7); err != nil {
		t.Fatalf("\t%s\tShould credit the reward at the minimum reward height: %s", failed, err)
	}

	if len(chainAPI.submitted) != 1 {
		t.Fatalf("\t%s\tShould queue exactly one reward entry, queued %d.", failed, len(chainAPI.submitted))
	}
	t.Logf("\t%s\tShould queue exactly one reward entry at the minimum reward height.", success)

	reward := chainAPI.submitted[0]
	if reward.From != signature.IdentityIncentive {
		t.Fatalf("\t%s\tShould originate the reward entry from the incentive sentinel identity, got %s.", failed, reward.From)
	}
	if reward.To != "miner-1" {
		t.Fatalf("\t%s\tShould credit the block's owner address, got %s.", failed, reward.To)
	}
	if reward.Amount != 50 {
		t.Fatalf("\t%s\tShould credit the fixed reward amount, got %d.", failed, reward.Amount)
	}
	t.Logf("\t%s\tShould credit the rewarded block's creator with the fixed reward.", success)
}

func Test_ProcessMissingRewardedBlockErrors(t *testing.T) {
	t.Log("Given the need to surface a lookup failure rather than silently skip a reward.")

	chainAPI := &stubChain{blocks: map[uint64]database.Block{}}
	inc := incentive.New(chainAPI, 50, nil)

	if err := inc.Process(7); err == nil {
		t.Fatalf("\t%s\tShould error when the rewarded block cannot be found.", failed)
	}
	t.Logf("\t%s\tShould error when the rewarded block cannot be found.", success)

	if len(chainAPI.submitted) != 0 {
		t.Fatalf("\t%s\tShould not queue a reward entry when the lookup fails.", failed)
	}
	t.Logf("\t%s\tShould not queue a reward entry when the lookup fails.", success)
}
