package users

import (
	"context"
	"strings"
	"time"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/audit"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entityUser = "user"

type UserResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Phone     string            `json:"phone"`
	Role      models.UserRole   `json:"role"`
	Status    models.UserStatus `json:"status"`
	CellID    *string           `json:"cell_id"`
	CreatedAt time.Time         `json:"created_at"`
}

type Filter struct {
	Role       string
	Status     string
	CellID     string
	Unassigned bool
}

type UpdateProfileInput struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

func toResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		Status:    u.Status,
		CellID:    u.CellID,
		CreatedAt: u.CreatedAt,
	}
}

func (s *Service) List(ctx context.Context, actor authz.Caller, f Filter) ([]UserResponse, error) {
	if err := authz.Authorize(actor, authz.UserList, authz.Resource{}).Err(); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		role, ok := models.ParseRole(f.Role)
		if !ok {
			return nil, apperr.Validation("Papel inválido")
		}
		q = q.Where("role = ?", role)
	}
	if f.Status != "" {
		status, ok := models.ParseStatus(f.Status)
		if !ok {
			return nil, apperr.Validation("Status inválido")
		}
		q = q.Where("status = ?", status)
	}
	switch {
	case f.Unassigned:
		q = q.Where("cell_id IS NULL")
	case f.CellID != "":
		q = q.Where("cell_id = ?", f.CellID)
	}

	var list []models.User
	if err := q.Order("name ASC").Find(&list).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	res := make([]UserResponse, 0, len(list))
	for i := range list {
		res = append(res, toResponse(&list[i]))
	}
	return res, nil
}

// UpdateRole troca o papel de outro usuário.
func (s *Service) UpdateRole(ctx context.Context, actor authz.Caller, userID, rawRole string) (*UserResponse, error) {
	role, ok := models.ParseRole(rawRole)
	if !ok {
		return nil, apperr.Validation("Papel inválido")
	}
	if err := authz.CanGrantRole(actor, userID, role).Err(); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return apperr.FromDB(err, "Usuário não encontrado")
		}
		// Quem está acima do chamador não pode ser rebaixado por ele.
		if user.Role.Rank() > actor.Role.Rank() {
			return apperr.Forbidden("Não é possível alterar o papel de um usuário acima do seu")
		}
		if user.Role == role {
			return nil
		}

		before := user.Role
		if err := tx.Model(&user).Update("role", role).Error; err != nil {
			return apperr.Internal(err)
		}
		user.Role = role
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  entityUser,
			EntityID:    user.ID,
			Action:      models.AuditActionUpdate,
			Description: "Papel alterado: " + user.Name,
			Before:      map[string]any{"role": before},
			After:       map[string]any{"role": role},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user role updated", zap.String("user_id", userID), zap.String("role", string(role)), zap.String("by", actor.ID))
	res := toResponse(&user)
	return &res, nil
}

// UpdateStatus ativa ou inativa um usuário. Inativos não conseguem entrar.
func (s *Service) UpdateStatus(ctx context.Context, actor authz.Caller, userID, rawStatus string) (*UserResponse, error) {
	if err := authz.Authorize(actor, authz.UserStatusUpdate, authz.Resource{}).Err(); err != nil {
		return nil, err
	}
	status, ok := models.ParseStatus(rawStatus)
	if !ok {
		return nil, apperr.Validation("Status inválido")
	}
	if actor.ID == userID {
		return nil, apperr.Forbidden("Não é possível alterar o próprio status")
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return apperr.FromDB(err, "Usuário não encontrado")
		}
		if user.Role.Rank() > actor.Role.Rank() {
			return apperr.Forbidden("Não é possível alterar o status de um usuário acima do seu")
		}
		if user.Status == status {
			return nil
		}

		before := user.Status
		if err := tx.Model(&user).Update("status", status).Error; err != nil {
			return apperr.Internal(err)
		}
		user.Status = status
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  entityUser,
			EntityID:    user.ID,
			Action:      models.AuditActionUpdate,
			Description: "Status alterado: " + user.Name,
			Before:      map[string]any{"status": before},
			After:       map[string]any{"status": status},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user status updated", zap.String("user_id", userID), zap.String("status", string(status)), zap.String("by", actor.ID))
	res := toResponse(&user)
	return &res, nil
}

// UpdateProfile altera nome e telefone do próprio usuário.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*UserResponse, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation("O nome não pode ficar vazio")
		}
		updates["name"] = name
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}

	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, apperr.FromDB(err, "Usuário não encontrado")
	}
	if len(updates) == 0 {
		res := toResponse(&user)
		return &res, nil
	}

	if err := db.Model(&user).Updates(updates).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if name, ok := updates["name"].(string); ok {
		user.Name = name
	}
	if phone, ok := updates["phone"].(string); ok {
		user.Phone = phone
	}
	res := toResponse(&user)
	return &res, nil
}
