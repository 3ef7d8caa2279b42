package auth

import (
	"context"
	"testing"
	"time"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/database/dbtest"
	"celulas-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupService(t *testing.T, revoker Revoker) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	svc := NewService(db, NewTokenService(testSecret, time.Hour), revoker, bcrypt.MinCost, zap.NewNop())
	return svc, db
}

func validInput() RegisterInput {
	return RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1", ConfirmPassword: "secret1"}
}

func countUsers(t *testing.T, db *gorm.DB, email string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", email).Count(&n).Error)
	return n
}

func TestRegister_Success(t *testing.T) {
	svc, db := setupService(t, nil)

	res, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, res.Token)
	assert.Equal(t, models.RoleMembro, res.User.Role)
	assert.Equal(t, "ana@x.com", res.User.Email)
	assert.Nil(t, res.User.Cell)
	assert.Equal(t, int64(1), countUsers(t, db, "ana@x.com"))

	claims, err := svc.tokens.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, models.RoleMembro, claims.Role)
}

func TestRegister_Validation(t *testing.T) {
	cases := map[string]func(*RegisterInput){
		"missing name":    func(in *RegisterInput) { in.Name = "  " },
		"missing email":   func(in *RegisterInput) { in.Email = "" },
		"missing confirm": func(in *RegisterInput) { in.ConfirmPassword = "" },
		"mismatch":        func(in *RegisterInput) { in.ConfirmPassword = "secret2" },
		"short password":  func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abc12", "abc12" },
		"malformed email": func(in *RegisterInput) { in.Email = "ana-at-x" },
		"display name":    func(in *RegisterInput) { in.Email = "Ana <ana@x.com>" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, db := setupService(t, nil)
			in := validInput()
			mutate(&in)

			_, err := svc.Register(context.Background(), in)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)

			var total int64
			require.NoError(t, db.Model(&models.User{}).Count(&total).Error)
			assert.Zero(t, total)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, db := setupService(t, nil)

	_, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	dup := validInput()
	dup.Email = "  ANA@x.com "
	_, err = svc.Register(context.Background(), dup)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, int64(1), countUsers(t, db, "ana@x.com"))
}

func TestLogin_NoEnumeration(t *testing.T) {
	svc, _ := setupService(t, nil)
	_, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	_, wrongPassword := svc.Login(context.Background(), "ana@x.com", "errada")
	_, unknownEmail := svc.Login(context.Background(), "ninguem@x.com", "secret1")

	var a, b *apperr.Error
	require.ErrorAs(t, wrongPassword, &a)
	require.ErrorAs(t, unknownEmail, &b)
	assert.Equal(t, apperr.KindAuth, a.Kind)
	assert.Equal(t, a.Kind, b.Kind)
	assert.Equal(t, a.Message, b.Message)
}

func TestLogin_Success(t *testing.T) {
	svc, _ := setupService(t, nil)
	_, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	res, err := svc.Login(context.Background(), "ANA@x.com", "secret1")
	require.NoError(t, err)

	claims, err := svc.tokens.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMembro, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, time.Minute)
}

func TestLogin_InactiveUser(t *testing.T) {
	svc, db := setupService(t, nil)
	reg, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", reg.User.ID).Update("status", models.StatusInactive).Error)

	res, err := svc.Login(context.Background(), "ana@x.com", "secret1")
	assert.Nil(t, res)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
}

func TestProfile_IncludesCell(t *testing.T) {
	svc, db := setupService(t, nil)
	reg, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	cell := models.Cell{Name: "Célula 1", Slug: "celula-1"}
	require.NoError(t, db.Create(&cell).Error)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", reg.User.ID).Update("cell_id", cell.ID).Error)

	p, err := svc.Profile(context.Background(), reg.User.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Cell)
	assert.Equal(t, "Célula 1", p.Cell.Name)

	_, err = svc.Profile(context.Background(), "nao-existe")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestLogout_RevokesToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, _ := setupService(t, NewRedisRevoker(client))
	res, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	claims, err := svc.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), claims))
	assert.True(t, mr.Exists(revokedKeyPrefix+claims.ID))

	_, err = svc.Authenticate(context.Background(), res.Token)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
}

func TestAuthenticate_ReadsCurrentRoleAndStatus(t *testing.T) {
	svc, db := setupService(t, nil)
	res, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", res.User.ID).Update("role", models.RoleLider).Error)
	claims, err := svc.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLider, claims.Role)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", res.User.ID).Update("status", models.StatusInactive).Error)
	_, err = svc.Authenticate(context.Background(), res.Token)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))

	require.NoError(t, db.Delete(&models.User{}, "id = ?", res.User.ID).Error)
	_, err = svc.Authenticate(context.Background(), res.Token)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
}

func TestBootstrapAdmin_Idempotent(t *testing.T) {
	svc, db := setupService(t, nil)

	created, err := svc.BootstrapAdmin(context.Background(), "Admin", "admin@igreja.org", "segredo123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.BootstrapAdmin(context.Background(), "Admin", "ADMIN@igreja.org", "segredo123")
	require.NoError(t, err)
	assert.False(t, created)

	var admin models.User
	require.NoError(t, db.Where("email = ?", "admin@igreja.org").First(&admin).Error)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	res, err := svc.Login(context.Background(), "admin@igreja.org", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
}
