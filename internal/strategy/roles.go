package strategy

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Role names a capability holder. Holders are resolved on every call, so a role change at the vault or
// on the instance is observed by the very next operation.
type Role string

const (
	RoleGovernance Role = "governance"
	RoleManagement Role = "management"
	RoleGuardian   Role = "guardian"
	RoleStrategist Role = "strategist"
	RoleKeeper     Role = "keeper"
	RoleVault      Role = "vault"
)

var (
	keepers             = []Role{RoleKeeper, RoleStrategist, RoleManagement, RoleGovernance}
	authorized          = []Role{RoleStrategist, RoleGovernance}
	vaultManagers       = []Role{RoleStrategist, RoleManagement, RoleGovernance}
	emergencyAuthorized = []Role{RoleStrategist, RoleManagement, RoleGovernance, RoleGuardian}
)

func (s *Strategy) holderLocked(r Role) common.Address {
	switch r {
	case RoleGovernance:
		return s.vault.Governance()
	case RoleManagement:
		return s.vault.Management()
	case RoleGuardian:
		return s.vault.Guardian()
	case RoleStrategist:
		return s.strategist
	case RoleKeeper:
		return s.keeper
	case RoleVault:
		return s.vault.Address()
	}
	return common.Address{}
}

// authorizeLocked checks initialization first, then whether caller holds any of roles.
func (s *Strategy) authorizeLocked(caller common.Address, roles ...Role) error {
	if s.vault == nil {
		return ErrNotInitialized
	}
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: zero caller", ErrPermissionDenied)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if s.holderLocked(r) == caller {
			return nil
		}
		names = append(names, string(r))
	}
	return fmt.Errorf("%w: %s is not %s", ErrPermissionDenied, caller.Hex(), strings.Join(names, "|"))
}
