package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
)

// Policy holds the ledger's economic parameters. It is loaded once at boot;
// the genesis fields are only consulted when the store is empty.
type Policy struct {
	Treasury      string `yaml:"treasury" json:"treasury"`
	RewardsPool   string `yaml:"rewards_pool" json:"rewards_pool"`
	GenesisSupply string `yaml:"genesis_supply" json:"genesis_supply"` // whole tokens, decimal
	RewardsFund   string `yaml:"rewards_fund" json:"rewards_fund"`     // slice of genesis moved to the pool
	FeeRatePPM    uint32 `yaml:"fee_rate_ppm" json:"fee_rate_ppm"`
	BurnRatePPM   uint32 `yaml:"burn_rate_ppm" json:"burn_rate_ppm"`
	StakingAPYBps uint32 `yaml:"staking_apy_bps" json:"staking_apy_bps"`
}

// LoadPolicy reads and validates a ledger policy YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks addresses and amounts without touching any store.
func (p *Policy) Validate() error {
	if err := token.Address(p.Treasury).Validate(); err != nil {
		return fmt.Errorf("policy treasury: %w", err)
	}
	if err := token.Address(p.RewardsPool).Validate(); err != nil {
		return fmt.Errorf("policy rewards_pool: %w", err)
	}
	if p.Treasury == p.RewardsPool {
		return fmt.Errorf("policy: treasury and rewards_pool must differ: %w", token.ErrSameAddress)
	}
	if _, err := amount.Parse(p.GenesisSupply); err != nil {
		return fmt.Errorf("policy genesis_supply: %w", err)
	}
	if p.RewardsFund != "" {
		if _, err := amount.Parse(p.RewardsFund); err != nil {
			return fmt.Errorf("policy rewards_fund: %w", err)
		}
	}
	return nil
}

// GenesisAmount returns the parsed genesis supply.
func (p *Policy) GenesisAmount() amount.Amount {
	return amount.MustParse(p.GenesisSupply)
}

// RewardsFundAmount returns the parsed rewards-pool funding, zero if unset.
func (p *Policy) RewardsFundAmount() amount.Amount {
	if p.RewardsFund == "" {
		return amount.Zero()
	}
	return amount.MustParse(p.RewardsFund)
}
