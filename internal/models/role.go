package models

import "strings"

type UserRole string

const (
	RoleMembro      UserRole = "MEMBRO"
	RoleLider       UserRole = "LIDER"
	RoleSupervisor  UserRole = "SUPERVISOR"
	RoleCoordenador UserRole = "COORDENADOR"
	RolePastor      UserRole = "PASTOR"
	RoleAdmin       UserRole = "ADMIN"
)

// Roles em ordem crescente de autoridade.
var Roles = []UserRole{RoleMembro, RoleLider, RoleSupervisor, RoleCoordenador, RolePastor, RoleAdmin}

var roleRank = map[UserRole]int{
	RoleMembro:      1,
	RoleLider:       2,
	RoleSupervisor:  3,
	RoleCoordenador: 4,
	RolePastor:      5,
	RoleAdmin:       6,
}

// Rank devolve 0 para papéis desconhecidos.
func (r UserRole) Rank() int {
	return roleRank[r]
}

func (r UserRole) Valid() bool {
	return r.Rank() > 0
}

// AtLeast compara pela tabela de autoridade. Papel inválido nunca satisfaz.
func (r UserRole) AtLeast(min UserRole) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

func ParseRole(s string) (UserRole, bool) {
	r := UserRole(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

type UserStatus string

const (
	StatusActive   UserStatus = "ACTIVE"
	StatusInactive UserStatus = "INACTIVE"
)

func ParseStatus(s string) (UserStatus, bool) {
	st := UserStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st == StatusActive || st == StatusInactive
}
