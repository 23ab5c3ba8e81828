package farm

import (
	"fmt"

	"github.com/holiman/uint256"

	"genproxy/core/types"
)

// indexScale is the fixed-point precision of the reward-per-share index.
var indexScale = uint256.NewInt(1_000_000_000_000_000_000)

// Undistributed counts whole reward tokens not yet folded into the index.
// Dust is the sub-token remainder of earlier distributions in index-scaled
// units; it is always smaller than indexScale.
type pool struct {
	TotalBonded   types.Uint128
	RewardIndex   []byte
	Undistributed types.Uint128
	Dust          []byte
}

type staker struct {
	Bonded        types.Uint128
	IndexSnapshot []byte
	Pending       types.Uint128
}

func (p *pool) index() *uint256.Int {
	return new(uint256.Int).SetBytes(p.RewardIndex)
}

// distribute folds amount, leftover tokens and the carried dust into the
// index. The index only ever grows by what the scaled balance can fully back,
// so the rewards owed to stakers never exceed what the farm was funded with.
func (p *pool) distribute(amount types.Uint128) error {
	undistributed, err := p.Undistributed.Add(amount)
	if err != nil {
		return fmt.Errorf("farm: undistributed rewards: %w", err)
	}
	p.Undistributed = undistributed
	if p.TotalBonded.IsZero() {
		return nil
	}
	total := p.TotalBonded.Uint256()
	available, overflow := new(uint256.Int).MulOverflow(p.Undistributed.Uint256(), indexScale)
	if overflow {
		return fmt.Errorf("farm: reward index overflow")
	}
	if _, overflow = available.AddOverflow(available, p.dust()); overflow {
		return fmt.Errorf("farm: reward index overflow")
	}
	inc := new(uint256.Int).Div(available, total)
	if inc.IsZero() {
		return nil
	}
	idx, overflow := new(uint256.Int).AddOverflow(p.index(), inc)
	if overflow {
		return fmt.Errorf("farm: reward index overflow")
	}
	leftover := new(uint256.Int).Sub(available, new(uint256.Int).Mul(inc, total))
	whole, err := types.Uint128FromUint256(new(uint256.Int).Div(leftover, indexScale))
	if err != nil {
		return err
	}
	p.RewardIndex = idx.Bytes()
	p.Undistributed = whole
	p.Dust = new(uint256.Int).Mod(leftover, indexScale).Bytes()
	return nil
}

func (p *pool) dust() *uint256.Int {
	return new(uint256.Int).SetBytes(p.Dust)
}

// settle moves everything s earned since its last snapshot into Pending.
func (s *staker) settle(p *pool) error {
	idx := p.index()
	if !s.Bonded.IsZero() {
		snap := new(uint256.Int).SetBytes(s.IndexSnapshot)
		delta := new(uint256.Int).Sub(idx, snap)
		earned, overflow := new(uint256.Int).MulDivOverflow(s.Bonded.Uint256(), delta, indexScale)
		if overflow {
			return fmt.Errorf("farm: pending reward overflow")
		}
		amount, err := types.Uint128FromUint256(earned)
		if err != nil {
			return err
		}
		pending, err := s.Pending.Add(amount)
		if err != nil {
			return err
		}
		s.Pending = pending
	}
	s.IndexSnapshot = idx.Bytes()
	return nil
}
