package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/yieldkeep/tokestrat/internal/types"
	"github.com/yieldkeep/tokestrat/internal/utils"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// StrategyMode selects how the daemon runs. Only "sim" (in-process ledger, venue and trade facility)
	// is supported.
	StrategyMode string

	// Role holders.
	GovernanceAddress  common.Address
	ManagementAddress  common.Address
	GuardianAddress    common.Address
	StrategistAddress  common.Address
	KeeperAddress      common.Address
	RolloverAddress    common.Address
	TradeOperator      common.Address
	VaultAddress       common.Address
	VenueAddress       common.Address
	TradeFactoryAddr   common.Address
	StrategyFactoryAdr common.Address

	// WantToken is the principal token, RewardToken the venue's reward token.
	WantToken   types.Token
	RewardToken types.Token

	// KeeperCallCost is the keeper's cost per call in want base units, fed to the trigger predicates.
	KeeperCallCost math.Int
	// KeeperInterval is how often the keeper evaluates triggers.
	KeeperInterval time.Duration

	// CycleDuration is the venue cycle length in seconds, CycleInterval how often the simulated venue rolls over.
	CycleDuration uint64
	CycleInterval time.Duration
	// ClockPolicy decides what extending a request inside its timelock does to its eligibility.
	ClockPolicy types.ClockPolicy
	// WithdrawalLockCycles is how many cycles a fresh venue request waits.
	WithdrawalLockCycles uint64

	// RewardPerCycle is the reward (base units) the simulated venue distributes per rollover,
	// SwapRate the want received per reward unit when trades execute.
	RewardPerCycle math.Int
	SwapRate       math.LegacyDec

	// Clones is how many extra instances the daemon clones from the template.
	Clones int

	// InitialDeposit is minted to Depositor and deposited into the vault at startup.
	InitialDeposit math.Int
	Depositor      common.Address
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Role addresses and the want token are required, everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	StrategyMode = getEnvOrDefault("STRATEGY_MODE", "sim")
	if StrategyMode != "sim" {
		return errors.New("STRATEGY_MODE must be \"sim\", got: " + StrategyMode)
	}

	if GovernanceAddress, err = getEnvAsAddress("GOVERNANCE_ADDRESS"); err != nil {
		return err
	}
	if StrategistAddress, err = getEnvAsAddress("STRATEGIST_ADDRESS"); err != nil {
		return err
	}
	if KeeperAddress, err = getEnvAsAddress("KEEPER_ADDRESS"); err != nil {
		return err
	}
	ManagementAddress = getEnvAsAddressOrDefault("MANAGEMENT_ADDRESS", GovernanceAddress)
	GuardianAddress = getEnvAsAddressOrDefault("GUARDIAN_ADDRESS", GovernanceAddress)
	RolloverAddress = getEnvAsAddressOrDefault("ROLLOVER_ADDRESS", DefaultVenueManager)
	TradeOperator = getEnvAsAddressOrDefault("TRADE_OPERATOR_ADDRESS", GovernanceAddress)
	VaultAddress = getEnvAsAddressOrDefault("VAULT_ADDRESS", common.HexToAddress("0x00000000000000000000000000000000000a0175"))
	VenueAddress = getEnvAsAddressOrDefault("VENUE_ADDRESS", KnownTokens["TWETH"].Address)
	TradeFactoryAddr = getEnvAsAddressOrDefault("TRADE_FACTORY_ADDRESS", common.HexToAddress("0x99d8679bE15011dEAD893EB4F5df474a4e6a8b29"))
	StrategyFactoryAdr = getEnvAsAddressOrDefault("STRATEGY_FACTORY_ADDRESS", common.HexToAddress("0x00000000000000000000000000000000000fac70"))

	wantDecimals, err := getEnvAsIntOrDefault("WANT_DECIMALS", 18)
	if err != nil {
		return err
	}
	if WantToken, err = ResolveToken(getEnvOrDefault("WANT_TOKEN", "WETH"), wantDecimals); err != nil {
		return err
	}
	rewardDecimals, err := getEnvAsIntOrDefault("REWARD_DECIMALS", 18)
	if err != nil {
		return err
	}
	if RewardToken, err = ResolveToken(getEnvOrDefault("REWARD_TOKEN", "TOKE"), rewardDecimals); err != nil {
		return err
	}
	if WantToken.Address == RewardToken.Address {
		return errors.New("WANT_TOKEN and REWARD_TOKEN must differ")
	}

	if KeeperCallCost, err = utils.ParseUnits(getEnvOrDefault("KEEPER_CALL_COST", "0"), WantToken.Decimals); err != nil {
		return errors.New("environment variable KEEPER_CALL_COST must be a decimal amount: " + err.Error())
	}
	if KeeperInterval, err = getEnvAsDurationOrDefault("KEEPER_INTERVAL", time.Minute); err != nil {
		return err
	}
	if CycleDuration, err = getEnvAsUint64OrDefault("CYCLE_DURATION", 86_400); err != nil {
		return err
	}
	if CycleInterval, err = getEnvAsDurationOrDefault("CYCLE_INTERVAL", 5*time.Minute); err != nil {
		return err
	}
	if ClockPolicy, err = types.ParseClockPolicy(getEnvOrDefault("CLOCK_POLICY", string(types.ClockAnchored))); err != nil {
		return err
	}
	if WithdrawalLockCycles, err = getEnvAsUint64OrDefault("WITHDRAWAL_LOCK_CYCLES", 1); err != nil {
		return err
	}
	if RewardPerCycle, err = utils.ParseUnits(getEnvOrDefault("REWARD_PER_CYCLE", "1"), RewardToken.Decimals); err != nil {
		return errors.New("environment variable REWARD_PER_CYCLE must be a decimal amount: " + err.Error())
	}
	if SwapRate, err = math.LegacyNewDecFromStr(getEnvOrDefault("SWAP_RATE", "0.01")); err != nil {
		return errors.New("environment variable SWAP_RATE must be a decimal: " + err.Error())
	}
	if Clones, err = getEnvAsIntOrDefault("STRATEGY_CLONES", 0); err != nil {
		return err
	}
	if Clones < 0 {
		return errors.New("environment variable STRATEGY_CLONES cannot be negative")
	}
	if InitialDeposit, err = utils.ParseUnits(getEnvOrDefault("INITIAL_DEPOSIT", "0"), WantToken.Decimals); err != nil {
		return errors.New("environment variable INITIAL_DEPOSIT must be a decimal amount: " + err.Error())
	}
	Depositor = getEnvAsAddressOrDefault("DEPOSITOR_ADDRESS", GovernanceAddress)

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("StrategyMode", StrategyMode).
		Str("Want", WantToken.Symbol).
		Str("Reward", RewardToken.Symbol).
		Str("ClockPolicy", string(ClockPolicy)).
		Uint64("CycleDuration", CycleDuration).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set or empty.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsAddress retrieves a required 0x address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a 0x address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}

func getEnvAsAddressOrDefault(key string, fallback common.Address) common.Address {
	valueStr := getEnvOrDefault(key, "")
	if !common.IsHexAddress(valueStr) {
		if valueStr != "" {
			log.Warn().Str("key", key).Str("value", valueStr).Msg("Ignoring invalid address, using default")
		}
		return fallback
	}
	return common.HexToAddress(valueStr)
}

// getEnvAsUint64OrDefault retrieves an environment variable as a uint64. Returns error if set but invalid.
func getEnvAsUint64OrDefault(key string, fallback uint64) (uint64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
