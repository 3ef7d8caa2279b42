// Package authz decide se um chamador pode executar uma ação.
//
// O papel do chamador precisa alcançar o mínimo da ação. Em recursos com
// posse ele também precisa ser dono (líder ou supervisor da célula), a não
// ser que o papel dispense a checagem.
package authz

import (
	"fmt"
	"slices"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/models"
)

type Action string

const (
	CellList              Action = "cell.list"
	CellView              Action = "cell.view"
	CellCreate            Action = "cell.create"
	CellUpdate            Action = "cell.update"
	CellDelete            Action = "cell.delete"
	CellMembersView       Action = "cell.members.view"
	CellMembersManage     Action = "cell.members.manage"
	CellSecretaryAssign   Action = "cell.secretary.assign"
	CellSupervisorAssign  Action = "cell.supervisor.assign"
	CellLeadersManage     Action = "cell.leaders.manage"
	CellPrayersView       Action = "cell.prayers.view"
	UserList              Action = "user.list"
	UserRoleUpdate        Action = "user.role.update"
	UserStatusUpdate      Action = "user.status.update"
	AuditView             Action = "audit.view"
	PrayerLog             Action = "prayer.log"
	OrganizationDashboard Action = "dashboard.organization"
)

type Rule struct {
	MinRole models.UserRole
	// Owned exige que o chamador seja dono do recurso
	Owned bool
	// BypassAt libera a checagem de posse a partir deste papel
	BypassAt models.UserRole
}

var policy = map[Action]Rule{
	CellList:              {MinRole: models.RoleMembro},
	CellView:              {MinRole: models.RoleMembro},
	CellCreate:            {MinRole: models.RoleCoordenador},
	CellUpdate:            {MinRole: models.RoleSupervisor, Owned: true, BypassAt: models.RoleCoordenador},
	CellDelete:            {MinRole: models.RolePastor},
	CellMembersView:       {MinRole: models.RoleLider, Owned: true, BypassAt: models.RoleCoordenador},
	CellMembersManage:     {MinRole: models.RoleLider, Owned: true, BypassAt: models.RoleCoordenador},
	CellSecretaryAssign:   {MinRole: models.RoleLider, Owned: true, BypassAt: models.RoleCoordenador},
	CellSupervisorAssign:  {MinRole: models.RoleCoordenador},
	CellLeadersManage:     {MinRole: models.RoleSupervisor, Owned: true, BypassAt: models.RoleCoordenador},
	CellPrayersView:       {MinRole: models.RoleLider, Owned: true, BypassAt: models.RoleCoordenador},
	UserList:              {MinRole: models.RoleSupervisor},
	UserRoleUpdate:        {MinRole: models.RoleAdmin},
	UserStatusUpdate:      {MinRole: models.RolePastor},
	AuditView:             {MinRole: models.RoleAdmin},
	PrayerLog:             {MinRole: models.RoleMembro},
	OrganizationDashboard: {MinRole: models.RoleCoordenador},
}

// RuleFor devolve a regra da ação.
func RuleFor(a Action) (Rule, bool) {
	r, ok := policy[a]
	return r, ok
}

type Caller struct {
	ID   string
	Role models.UserRole
}

// Resource descreve o alvo. OwnerIDs só importa para ações com posse.
type Resource struct {
	OwnerIDs []string
}

type Decision struct {
	Allowed bool
	Reason  string
}

// Err converte uma negação em ForbiddenError.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Forbidden(d.Reason)
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

func Authorize(caller Caller, action Action, res Resource) Decision {
	rule, ok := policy[action]
	if !ok {
		return deny("Ação desconhecida: %s", action)
	}
	if !caller.Role.Valid() {
		return deny("Papel inválido")
	}
	if !caller.Role.AtLeast(rule.MinRole) {
		return deny("Esta ação exige o papel %s ou superior", rule.MinRole)
	}
	if !rule.Owned {
		return allow()
	}
	if rule.BypassAt != "" && caller.Role.AtLeast(rule.BypassAt) {
		return allow()
	}
	if caller.ID != "" && slices.Contains(res.OwnerIDs, caller.ID) {
		return allow()
	}
	return deny("Apenas o líder ou supervisor da célula pode realizar esta ação")
}

// CanGrantRole aplica as regras extras de troca de papel: ninguém concede
// acima do próprio papel nem altera o próprio papel.
func CanGrantRole(caller Caller, targetID string, role models.UserRole) Decision {
	if d := Authorize(caller, UserRoleUpdate, Resource{}); !d.Allowed {
		return d
	}
	if !role.Valid() {
		return deny("Papel inválido")
	}
	if caller.ID == targetID {
		return deny("Não é possível alterar o próprio papel")
	}
	if role.Rank() > caller.Role.Rank() {
		return deny("Não é possível conceder um papel acima do seu")
	}
	return allow()
}
