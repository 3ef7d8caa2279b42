package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

// Mesma mensagem para email inexistente e senha errada.
const invalidCredentials = "Email ou senha inválidos"

type RegisterInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type CellRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PublicUser struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Phone  string            `json:"phone,omitempty"`
	Role   models.UserRole   `json:"role"`
	Status models.UserStatus `json:"status"`
	CellID *string           `json:"cell_id"`
	Cell   *CellRef          `json:"cell"`
}

type AuthResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      PublicUser `json:"user"`
}

type Service struct {
	db         *gorm.DB
	tokens     *TokenService
	revoker    Revoker
	bcryptCost int
	log        *zap.Logger

	// usado para igualar o tempo de resposta quando o email não existe
	dummyHash []byte
}

func NewService(db *gorm.DB, tokens *TokenService, revoker Revoker, bcryptCost int, log *zap.Logger) *Service {
	if revoker == nil {
		revoker = NoopRevoker{}
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("senha-inexistente"), bcryptCost)
	return &Service{
		db:         db,
		tokens:     tokens,
		revoker:    revoker,
		bcryptCost: bcryptCost,
		log:        log,
		dummyHash:  dummy,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	if in.Name == "" || in.Email == "" || in.Password == "" || in.ConfirmPassword == "" {
		return nil, apperr.Validation("Nome, email, senha e confirmação são obrigatórios")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return nil, apperr.Validation("Email inválido")
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperr.Validation("As senhas não conferem")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperr.Validation("A senha deve ter pelo menos 6 caracteres")
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if count > 0 {
		return nil, apperr.Conflict("Email já cadastrado")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.RoleMembro,
		Status:       models.StatusActive,
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("Email já cadastrado")
		}
		return nil, apperr.Internal(err)
	}

	s.log.Info("user registered", zap.String("user_id", user.ID))
	return s.issue(ctx, &user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("Email e senha são obrigatórios")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if !user.IsActive() {
		return nil, apperr.Unauthorized("Conta inativa")
	}

	return s.issue(ctx, &user)
}

func (s *Service) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	token, claims, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	public, err := s.publicUser(ctx, user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      *public,
	}, nil
}

// Profile devolve o perfil público com a célula atual.
func (s *Service) Profile(ctx context.Context, userID string) (*PublicUser, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, apperr.FromDB(err, "Usuário não encontrado")
	}
	return s.publicUser(ctx, &user)
}

func (s *Service) publicUser(ctx context.Context, user *models.User) (*PublicUser, error) {
	p := &PublicUser{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Phone:  user.Phone,
		Role:   user.Role,
		Status: user.Status,
		CellID: user.CellID,
	}
	if user.CellID != nil {
		var cell models.Cell
		err := s.db.WithContext(ctx).Select("id", "name").First(&cell, "id = ?", *user.CellID).Error
		switch {
		case err == nil:
			p.Cell = &CellRef{ID: cell.ID, Name: cell.Name}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperr.Internal(err)
		}
	}
	return p, nil
}

// Authenticate valida assinatura, expiração e revogação do token. Papel e
// status vêm do banco, não do token.
func (s *Service) Authenticate(ctx context.Context, tokenStr string) (*JWTCustomClaims, error) {
	claims, err := s.tokens.ParseToken(tokenStr)
	if err != nil {
		return nil, apperr.Unauthorized("Token inválido ou expirado")
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.log.Warn("revocation check failed", zap.Error(err))
		return nil, apperr.Internal(err)
	}
	if revoked {
		return nil, apperr.Unauthorized("Sessão encerrada")
	}

	var user models.User
	err = s.db.WithContext(ctx).Select("id", "role", "status").First(&user, "id = ?", claims.UserID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Unauthorized("Token inválido ou expirado")
	case err != nil:
		return nil, apperr.Internal(err)
	case !user.IsActive():
		return nil, apperr.Unauthorized("Conta inativa")
	}
	claims.Role = user.Role
	return claims, nil
}

func (s *Service) Logout(ctx context.Context, claims *JWTCustomClaims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return apperr.Unauthorized("Token inválido ou expirado")
	}
	if err := s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// BootstrapAdmin cria o administrador inicial se o email ainda não existir.
func (s *Service) BootstrapAdmin(ctx context.Context, name, email, password string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || len(password) < minPasswordLength {
		return false, apperr.Validation("Credenciais de administrador inválidas")
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, apperr.Internal(err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return false, apperr.Internal(err)
	}
	admin := models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		Status:       models.StatusActive,
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, apperr.FromDB(err, "")
	}

	s.log.Info("admin bootstrapped", zap.String("user_id", admin.ID))
	return true, nil
}
