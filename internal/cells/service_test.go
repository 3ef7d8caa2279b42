package cells

import (
	"bytes"
	"context"
	"testing"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/database/dbtest"
	"celulas-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	ctx   context.Context
	admin authz.Caller
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{db: db, svc: NewService(db, zap.NewNop()), ctx: context.Background()}
	admin := f.user(t, "Admin", models.RoleAdmin)
	f.admin = authz.Caller{ID: admin.ID, Role: admin.Role}
	return f
}

func (f *fixture) user(t *testing.T, name string, role models.UserRole) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: slugEmail(name), PasswordHash: "h", Role: role}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func slugEmail(name string) string {
	return makeSlug(name) + "@x.com"
}

func callerOf(u *models.User) authz.Caller {
	return authz.Caller{ID: u.ID, Role: u.Role}
}

func (f *fixture) cellOf(t *testing.T, userID string) *string {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, "id = ?", userID).Error)
	return u.CellID
}

func TestCreate_WithLeaders(t *testing.T) {
	f := setup(t)
	leader := f.user(t, "Bruno", models.RoleLider)

	view, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1", LeaderIDs: []string{leader.ID, leader.ID, " "}})
	require.NoError(t, err)

	assert.Equal(t, "Célula 1", view.Name)
	assert.Equal(t, "celula-1", view.Slug)
	assert.Equal(t, int64(0), view.MemberCount)
	require.Len(t, view.Leaders, 1)
	assert.Equal(t, leader.ID, view.Leaders[0].ID)

	var n int64
	require.NoError(t, f.db.Model(&models.CellLeader{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestCreate_Validation(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "   "})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	member := f.user(t, "Carla", models.RoleMembro)
	_, err = f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 2", LeaderIDs: []string{member.ID}})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 3", LeaderIDs: []string{"fantasma"}})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	var cells int64
	require.NoError(t, f.db.Model(&models.Cell{}).Count(&cells).Error)
	assert.Zero(t, cells, "failed creations must not leave rows behind")
}

func TestCreate_Forbidden(t *testing.T) {
	f := setup(t)
	sup := f.user(t, "Sup", models.RoleSupervisor)

	_, err := f.svc.Create(f.ctx, callerOf(sup), CreateCellInput{Name: "Célula"})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCreate_SameSlugNamesCoexist(t *testing.T) {
	f := setup(t)

	first, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1"})
	require.NoError(t, err)
	second, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula-1"})
	require.NoError(t, err)
	third, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1"})
	require.NoError(t, err)

	assert.Equal(t, first.Slug, second.Slug)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.ID, third.ID)

	renamed := "celula 1"
	_, err = f.svc.Update(f.ctx, f.admin, second.ID, UpdateCellInput{Name: &renamed})
	require.NoError(t, err)

	list, err := f.svc.List(f.ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestCreate_WithSecretaryAddsMembership(t *testing.T) {
	f := setup(t)
	ana := f.user(t, "Ana", models.RoleMembro)

	view, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1", SecretaryID: &ana.ID})
	require.NoError(t, err)

	assert.Equal(t, int64(1), view.MemberCount)
	require.NotNil(t, view.SecretaryID)
	assert.Equal(t, ana.ID, *view.SecretaryID)
	assert.Equal(t, view.ID, *f.cellOf(t, ana.ID))
}

func TestCreate_SecretaryInOtherCellRollsBack(t *testing.T) {
	f := setup(t)
	ana := f.user(t, "Ana", models.RoleMembro)
	first, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Primeira"})
	require.NoError(t, err)
	require.NoError(t, f.svc.AddMember(f.ctx, f.admin, first.ID, ana.ID))

	_, err = f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Segunda", SecretaryID: &ana.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	var n int64
	require.NoError(t, f.db.Model(&models.Cell{}).Where("name = ?", "Segunda").Count(&n).Error)
	assert.Zero(t, n)
}

func TestAddMember(t *testing.T) {
	f := setup(t)
	ana := f.user(t, "Ana", models.RoleMembro)
	c1, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1"})
	require.NoError(t, err)
	c2, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 2"})
	require.NoError(t, err)

	require.NoError(t, f.svc.AddMember(f.ctx, f.admin, c1.ID, ana.ID))

	view, err := f.svc.Get(f.ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.MemberCount)

	t.Run("rejects user already in another cell", func(t *testing.T) {
		err := f.svc.AddMember(f.ctx, f.admin, c2.ID, ana.ID)
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
		assert.Equal(t, c1.ID, *f.cellOf(t, ana.ID))
	})

	t.Run("rejects re-adding to same cell", func(t *testing.T) {
		err := f.svc.AddMember(f.ctx, f.admin, c1.ID, ana.ID)
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})

	t.Run("missing user and cell", func(t *testing.T) {
		assert.True(t, apperr.IsKind(f.svc.AddMember(f.ctx, f.admin, c1.ID, "fantasma"), apperr.KindNotFound))
		assert.True(t, apperr.IsKind(f.svc.AddMember(f.ctx, f.admin, "fantasma", ana.ID), apperr.KindNotFound))
		assert.True(t, apperr.IsKind(f.svc.AddMember(f.ctx, f.admin, c1.ID, ""), apperr.KindValidation))
	})
}

func TestAddMember_Ownership(t *testing.T) {
	f := setup(t)
	leader := f.user(t, "Bruno", models.RoleLider)
	otherLeader := f.user(t, "Davi", models.RoleLider)
	ana := f.user(t, "Ana", models.RoleMembro)

	cell, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1", LeaderIDs: []string{leader.ID}})
	require.NoError(t, err)

	err = f.svc.AddMember(f.ctx, callerOf(otherLeader), cell.ID, ana.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.Nil(t, f.cellOf(t, ana.ID))

	require.NoError(t, f.svc.AddMember(f.ctx, callerOf(leader), cell.ID, ana.ID))
}

func TestRemoveMember_ClearsSecretary(t *testing.T) {
	f := setup(t)
	ana := f.user(t, "Ana", models.RoleMembro)
	cell, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1"})
	require.NoError(t, err)
	require.NoError(t, f.svc.AddMember(f.ctx, f.admin, cell.ID, ana.ID))
	require.NoError(t, f.svc.AssignSecretary(f.ctx, f.admin, cell.ID, ana.ID))

	require.NoError(t, f.svc.RemoveMember(f.ctx, f.admin, cell.ID, ana.ID))

	view, err := f.svc.Get(f.ctx, cell.ID)
	require.NoError(t, err)
	assert.Nil(t, view.SecretaryID)
	assert.Zero(t, view.MemberCount)
	assert.Nil(t, f.cellOf(t, ana.ID))

	err = f.svc.RemoveMember(f.ctx, f.admin, cell.ID, ana.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAssignSecretary_RequiresMembership(t *testing.T) {
	f := setup(t)
	ana := f.user(t, "Ana", models.RoleMembro)
	bia := f.user(t, "Bia", models.RoleMembro)
	c1, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1"})
	require.NoError(t, err)
	c2, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 2"})
	require.NoError(t, err)
	require.NoError(t, f.svc.AddMember(f.ctx, f.admin, c2.ID, bia.ID))

	assert.True(t, apperr.IsKind(f.svc.AssignSecretary(f.ctx, f.admin, c1.ID, ana.ID), apperr.KindValidation))
	assert.True(t, apperr.IsKind(f.svc.AssignSecretary(f.ctx, f.admin, c1.ID, bia.ID), apperr.KindValidation))

	require.NoError(t, f.svc.AddMember(f.ctx, f.admin, c1.ID, ana.ID))
	require.NoError(t, f.svc.AssignSecretary(f.ctx, f.admin, c1.ID, ana.ID))

	view, err := f.svc.Get(f.ctx, c1.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Secretary)
	assert.Equal(t, ana.ID, view.Secretary.ID)
}

func TestSupervisorAndLeaders(t *testing.T) {
	f := setup(t)
	sup := f.user(t, "Sara", models.RoleSupervisor)
	leader := f.user(t, "Bruno", models.RoleLider)
	member := f.user(t, "Ana", models.RoleMembro)
	cell, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1"})
	require.NoError(t, err)

	assert.True(t, apperr.IsKind(f.svc.SetSupervisor(f.ctx, f.admin, cell.ID, leader.ID), apperr.KindValidation))
	require.NoError(t, f.svc.SetSupervisor(f.ctx, f.admin, cell.ID, sup.ID))

	// o supervisor passa a ser dono da célula
	require.NoError(t, f.svc.AddLeader(f.ctx, callerOf(sup), cell.ID, leader.ID))
	assert.True(t, apperr.IsKind(f.svc.AddLeader(f.ctx, callerOf(sup), cell.ID, leader.ID), apperr.KindConflict))
	assert.True(t, apperr.IsKind(f.svc.AddLeader(f.ctx, callerOf(sup), cell.ID, member.ID), apperr.KindValidation))

	bySup, err := f.svc.List(f.ctx, ListFilter{SupervisorID: sup.ID})
	require.NoError(t, err)
	require.Len(t, bySup, 1)
	assert.Equal(t, "Sara", bySup[0].Supervisor.Name)

	byLeader, err := f.svc.List(f.ctx, ListFilter{LeaderID: leader.ID})
	require.NoError(t, err)
	require.Len(t, byLeader, 1)

	require.NoError(t, f.svc.RemoveLeader(f.ctx, callerOf(sup), cell.ID, leader.ID))
	assert.True(t, apperr.IsKind(f.svc.RemoveLeader(f.ctx, callerOf(sup), cell.ID, leader.ID), apperr.KindNotFound))

	require.NoError(t, f.svc.SetSupervisor(f.ctx, f.admin, cell.ID, ""))
	view, err := f.svc.Get(f.ctx, cell.ID)
	require.NoError(t, err)
	assert.Nil(t, view.SupervisorID)
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	cell, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1"})
	require.NoError(t, err)

	name := "Célula Esperança"
	day := "Quarta"
	view, err := f.svc.Update(f.ctx, f.admin, cell.ID, UpdateCellInput{Name: &name, MeetingDay: &day})
	require.NoError(t, err)
	assert.Equal(t, "celula-esperanca", view.Slug)
	assert.Equal(t, "Quarta", view.MeetingDay)

	blank := " "
	_, err = f.svc.Update(f.ctx, f.admin, cell.ID, UpdateCellInput{Name: &blank})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDelete_DetachesMembers(t *testing.T) {
	f := setup(t)
	leader := f.user(t, "Bruno", models.RoleLider)
	ana := f.user(t, "Ana", models.RoleMembro)
	cell, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1", LeaderIDs: []string{leader.ID}})
	require.NoError(t, err)
	require.NoError(t, f.svc.AddMember(f.ctx, f.admin, cell.ID, ana.ID))

	assert.True(t, apperr.IsKind(f.svc.Delete(f.ctx, callerOf(leader), cell.ID), apperr.KindForbidden))

	require.NoError(t, f.svc.Delete(f.ctx, f.admin, cell.ID))

	assert.Nil(t, f.cellOf(t, ana.ID))
	var leaders int64
	require.NoError(t, f.db.Model(&models.CellLeader{}).Count(&leaders).Error)
	assert.Zero(t, leaders)

	_, err = f.svc.Get(f.ctx, cell.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	var logs int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("entity_id = ? AND action = ?", cell.ID, models.AuditActionDelete).Count(&logs).Error)
	assert.Equal(t, int64(1), logs)
}

func TestExportMembers(t *testing.T) {
	f := setup(t)
	ana := f.user(t, "Ana", models.RoleMembro)
	cell, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1", SecretaryID: &ana.ID})
	require.NoError(t, err)

	data, filename, err := f.svc.ExportMembers(f.ctx, f.admin, cell.ID)
	require.NoError(t, err)
	assert.Equal(t, "membros-celula-1.xlsx", filename)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(rosterSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, rosterHeaders, rows[0])
	assert.Equal(t, "Ana", rows[1][0])
	assert.Equal(t, "Sim", rows[1][5])
}

func rosterFile(t *testing.T, emails ...string) *bytes.Buffer {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	for i, e := range emails {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetCellValue("Sheet1", ref, e))
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportMembers(t *testing.T) {
	f := setup(t)
	ana := f.user(t, "Ana", models.RoleMembro)
	bia := f.user(t, "Bia", models.RoleMembro)
	caio := f.user(t, "Caio", models.RoleMembro)

	c1, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 1"})
	require.NoError(t, err)
	c2, err := f.svc.Create(f.ctx, f.admin, CreateCellInput{Name: "Célula 2"})
	require.NoError(t, err)
	require.NoError(t, f.svc.AddMember(f.ctx, f.admin, c2.ID, bia.ID))

	file := rosterFile(t, "Email", " ANA@x.com", "ninguem@x.com", "bia@x.com", "", "ana@x.com", "caio@x.com")
	res, err := f.svc.ImportMembers(f.ctx, f.admin, c1.ID, file)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{ana.ID, caio.ID}, res.Added)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, ImportSkip{Row: 3, Email: "ninguem@x.com", Reason: "Usuário não encontrado"}, res.Skipped[0])
	assert.Equal(t, 4, res.Skipped[1].Row)

	assert.Equal(t, c1.ID, *f.cellOf(t, ana.ID))
	assert.Equal(t, c2.ID, *f.cellOf(t, bia.ID))

	t.Run("address containing email in first row", func(t *testing.T) {
		emanuel := &models.User{Name: "Emanuel", Email: "emanuel.email@x.com", PasswordHash: "h", Role: models.RoleMembro}
		require.NoError(t, f.db.Create(emanuel).Error)

		res, err := f.svc.ImportMembers(f.ctx, f.admin, c1.ID, rosterFile(t, "emanuel.email@x.com"))
		require.NoError(t, err)
		assert.Equal(t, []string{emanuel.ID}, res.Added)
		assert.Empty(t, res.Skipped)
		assert.Equal(t, c1.ID, *f.cellOf(t, emanuel.ID))
	})

	t.Run("header spelled E-mail", func(t *testing.T) {
		emails, err := readEmails(rosterFile(t, "E-mail", "caio@x.com"))
		require.NoError(t, err)
		assert.Equal(t, []string{"", "caio@x.com"}, emails)
	})

	t.Run("not a spreadsheet", func(t *testing.T) {
		_, err := f.svc.ImportMembers(f.ctx, f.admin, c1.ID, bytes.NewBufferString("nome,email"))
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("requires ownership", func(t *testing.T) {
		outsider := f.user(t, "Davi", models.RoleLider)
		_, err := f.svc.ImportMembers(f.ctx, callerOf(outsider), c1.ID, rosterFile(t, "caio@x.com"))
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})
}
