package cells

import (
	"context"
	"errors"
	"strings"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/audit"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entityCell = "cell"

type CreateCellInput struct {
	Name         string   `json:"name"`
	LeaderIDs    []string `json:"leader_ids"`
	SecretaryID  *string  `json:"secretary_id"`
	SupervisorID *string  `json:"supervisor_id"`
	MeetingDay   string   `json:"meeting_day"`
	MeetingTime  string   `json:"meeting_time"`
	Address      string   `json:"address"`
}

type UpdateCellInput struct {
	Name        *string `json:"name"`
	MeetingDay  *string `json:"meeting_day"`
	MeetingTime *string `json:"meeting_time"`
	Address     *string `json:"address"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

func makeSlug(name string) string {
	s := slug.Make(name)
	if s == "" {
		s = "celula-" + uuid.NewString()[:8]
	}
	return s
}

func cleanIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func loadCell(tx *gorm.DB, id string) (*models.Cell, error) {
	var cell models.Cell
	if err := tx.First(&cell, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "Célula não encontrada")
	}
	return &cell, nil
}

func loadUser(tx *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "Usuário não encontrado")
	}
	return &user, nil
}

// owners são os líderes e o supervisor da célula.
func owners(tx *gorm.DB, cell *models.Cell) ([]string, error) {
	var ids []string
	if err := tx.Model(&models.CellLeader{}).Where("cell_id = ?", cell.ID).Pluck("user_id", &ids).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if cell.SupervisorID != nil {
		ids = append(ids, *cell.SupervisorID)
	}
	return ids, nil
}

func authorizeOn(tx *gorm.DB, actor authz.Caller, action authz.Action, cell *models.Cell) error {
	rule, ok := authz.RuleFor(action)
	res := authz.Resource{}
	if ok && rule.Owned {
		ids, err := owners(tx, cell)
		if err != nil {
			return err
		}
		res.OwnerIDs = ids
	}
	return authz.Authorize(actor, action, res).Err()
}

// Authorize carrega a célula e aplica a política da ação sobre ela.
func (s *Service) Authorize(ctx context.Context, actor authz.Caller, action authz.Action, cellID string) error {
	tx := s.db.WithContext(ctx)
	cell, err := loadCell(tx, cellID)
	if err != nil {
		return err
	}
	return authorizeOn(tx, actor, action, cell)
}

func requireRole(user *models.User, min models.UserRole, what string) error {
	if !user.Role.AtLeast(min) {
		return apperr.Validation(what + " precisa ter o papel " + string(min) + " ou superior")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor authz.Caller, in CreateCellInput) (*CellView, error) {
	if err := authz.Authorize(actor, authz.CellCreate, authz.Resource{}).Err(); err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("O nome da célula é obrigatório")
	}
	leaderIDs := cleanIDs(in.LeaderIDs)

	var cellID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range leaderIDs {
			leader, err := loadUser(tx, id)
			if err != nil {
				return err
			}
			if err := requireRole(leader, models.RoleLider, "O líder "+leader.Name); err != nil {
				return err
			}
		}

		cell := models.Cell{
			Name:        in.Name,
			Slug:        makeSlug(in.Name),
			MeetingDay:  strings.TrimSpace(in.MeetingDay),
			MeetingTime: strings.TrimSpace(in.MeetingTime),
			Address:     strings.TrimSpace(in.Address),
		}

		if in.SupervisorID != nil && strings.TrimSpace(*in.SupervisorID) != "" {
			sup, err := loadUser(tx, strings.TrimSpace(*in.SupervisorID))
			if err != nil {
				return err
			}
			if err := requireRole(sup, models.RoleSupervisor, "O supervisor"); err != nil {
				return err
			}
			cell.SupervisorID = &sup.ID
		}

		if err := tx.Create(&cell).Error; err != nil {
			return apperr.Internal(err)
		}

		for _, id := range leaderIDs {
			if err := tx.Create(&models.CellLeader{CellID: cell.ID, UserID: id}).Error; err != nil {
				return apperr.Internal(err)
			}
		}

		// A secretária entra como membro na mesma transação
		if in.SecretaryID != nil && strings.TrimSpace(*in.SecretaryID) != "" {
			secretaryID := strings.TrimSpace(*in.SecretaryID)
			if err := addMember(tx, cell.ID, secretaryID); err != nil {
				return err
			}
			if err := tx.Model(&cell).Update("secretary_id", secretaryID).Error; err != nil {
				return apperr.Internal(err)
			}
		}

		cellID = cell.ID
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  entityCell,
			EntityID:    cell.ID,
			Action:      models.AuditActionCreate,
			Description: "Célula criada: " + cell.Name,
			After:       in,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cell created", zap.String("cell_id", cellID), zap.String("by", actor.ID))
	return s.Get(ctx, cellID)
}

func (s *Service) Update(ctx context.Context, actor authz.Caller, id string, in UpdateCellInput) (*CellView, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, id)
		if err != nil {
			return err
		}
		if err := authorizeOn(tx, actor, authz.CellUpdate, cell); err != nil {
			return err
		}

		before := *cell
		updates := map[string]interface{}{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperr.Validation("O nome da célula é obrigatório")
			}
			updates["name"] = name
			updates["slug"] = makeSlug(name)
		}
		if in.MeetingDay != nil {
			updates["meeting_day"] = strings.TrimSpace(*in.MeetingDay)
		}
		if in.MeetingTime != nil {
			updates["meeting_time"] = strings.TrimSpace(*in.MeetingTime)
		}
		if in.Address != nil {
			updates["address"] = strings.TrimSpace(*in.Address)
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(cell).Updates(updates).Error; err != nil {
			return apperr.Internal(err)
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  entityCell,
			EntityID:    cell.ID,
			Action:      models.AuditActionUpdate,
			Description: "Célula atualizada: " + before.Name,
			Before:      before,
			After:       updates,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete desvincula os membros e remove líderes e célula numa transação.
func (s *Service) Delete(ctx context.Context, actor authz.Caller, id string) error {
	if err := authz.Authorize(actor, authz.CellDelete, authz.Resource{}).Err(); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, id)
		if err != nil {
			return err
		}

		res := tx.Model(&models.User{}).Where("cell_id = ?", id).Update("cell_id", nil)
		if res.Error != nil {
			return apperr.Internal(res.Error)
		}
		detached := res.RowsAffected

		if err := tx.Where("cell_id = ?", id).Delete(&models.CellLeader{}).Error; err != nil {
			return apperr.Internal(err)
		}
		if err := tx.Delete(&models.Cell{}, "id = ?", id).Error; err != nil {
			return apperr.Internal(err)
		}

		s.log.Info("cell deleted", zap.String("cell_id", id), zap.Int64("detached_members", detached))
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  entityCell,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: "Célula removida: " + cell.Name,
			Before:      cell,
		})
	})
}

// addMember só grava se o usuário ainda não tiver célula; a condição no
// UPDATE impede sobrescrever uma atribuição concorrente.
func addMember(tx *gorm.DB, cellID, userID string) error {
	user, err := loadUser(tx, userID)
	if err != nil {
		return err
	}
	if user.CellID != nil {
		if *user.CellID == cellID {
			return apperr.Conflict("Usuário já é membro desta célula")
		}
		return apperr.Conflict("Usuário já pertence a outra célula; remova-o antes")
	}

	res := tx.Model(&models.User{}).
		Where("id = ? AND cell_id IS NULL", userID).
		Update("cell_id", cellID)
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("Usuário já pertence a outra célula; remova-o antes")
	}
	return nil
}

func (s *Service) AddMember(ctx context.Context, actor authz.Caller, cellID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperr.Validation("user_id é obrigatório")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, cellID)
		if err != nil {
			return err
		}
		if err := authorizeOn(tx, actor, authz.CellMembersManage, cell); err != nil {
			return err
		}
		if err := addMember(tx, cellID, userID); err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  "cell_member",
			EntityID:    userID,
			Action:      models.AuditActionCreate,
			Description: "Membro adicionado à célula " + cell.Name,
			After:       map[string]string{"cell_id": cellID, "user_id": userID},
		})
	})
}

func (s *Service) RemoveMember(ctx context.Context, actor authz.Caller, cellID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, cellID)
		if err != nil {
			return err
		}
		if err := authorizeOn(tx, actor, authz.CellMembersManage, cell); err != nil {
			return err
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND cell_id = ?", userID, cellID).
			Update("cell_id", nil)
		if res.Error != nil {
			return apperr.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Validation("Usuário não é membro desta célula")
		}

		if cell.SecretaryID != nil && *cell.SecretaryID == userID {
			if err := tx.Model(cell).Update("secretary_id", nil).Error; err != nil {
				return apperr.Internal(err)
			}
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  "cell_member",
			EntityID:    userID,
			Action:      models.AuditActionDelete,
			Description: "Membro removido da célula " + cell.Name,
			Before:      map[string]string{"cell_id": cellID, "user_id": userID},
		})
	})
}

// AssignSecretary exige que o usuário seja membro atual da célula.
func (s *Service) AssignSecretary(ctx context.Context, actor authz.Caller, cellID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperr.Validation("user_id é obrigatório")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, cellID)
		if err != nil {
			return err
		}
		if err := authorizeOn(tx, actor, authz.CellSecretaryAssign, cell); err != nil {
			return err
		}

		var isMember int64
		if err := tx.Model(&models.User{}).Where("id = ? AND cell_id = ?", userID, cellID).Count(&isMember).Error; err != nil {
			return apperr.Internal(err)
		}
		if isMember == 0 {
			return apperr.Validation("A secretária precisa ser membro desta célula")
		}

		before := cell.SecretaryID
		if err := tx.Model(cell).Update("secretary_id", userID).Error; err != nil {
			return apperr.Internal(err)
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  entityCell,
			EntityID:    cellID,
			Action:      models.AuditActionUpdate,
			Description: "Secretária definida na célula " + cell.Name,
			Before:      map[string]*string{"secretary_id": before},
			After:       map[string]string{"secretary_id": userID},
		})
	})
}

// SetSupervisor define (ou remove, com supervisorID vazio) o supervisor.
func (s *Service) SetSupervisor(ctx context.Context, actor authz.Caller, cellID, supervisorID string) error {
	supervisorID = strings.TrimSpace(supervisorID)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, cellID)
		if err != nil {
			return err
		}
		if err := authorizeOn(tx, actor, authz.CellSupervisorAssign, cell); err != nil {
			return err
		}

		var value interface{}
		if supervisorID != "" {
			sup, err := loadUser(tx, supervisorID)
			if err != nil {
				return err
			}
			if err := requireRole(sup, models.RoleSupervisor, "O supervisor"); err != nil {
				return err
			}
			value = sup.ID
		}

		before := cell.SupervisorID
		if err := tx.Model(cell).Update("supervisor_id", value).Error; err != nil {
			return apperr.Internal(err)
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  entityCell,
			EntityID:    cellID,
			Action:      models.AuditActionUpdate,
			Description: "Supervisor alterado na célula " + cell.Name,
			Before:      map[string]*string{"supervisor_id": before},
			After:       map[string]string{"supervisor_id": supervisorID},
		})
	})
}

func (s *Service) AddLeader(ctx context.Context, actor authz.Caller, cellID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperr.Validation("user_id é obrigatório")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, cellID)
		if err != nil {
			return err
		}
		if err := authorizeOn(tx, actor, authz.CellLeadersManage, cell); err != nil {
			return err
		}
		leader, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		if err := requireRole(leader, models.RoleLider, "O líder "+leader.Name); err != nil {
			return err
		}

		if err := tx.Create(&models.CellLeader{CellID: cellID, UserID: userID}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("Usuário já é líder desta célula")
			}
			return apperr.Internal(err)
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  "cell_leader",
			EntityID:    userID,
			Action:      models.AuditActionCreate,
			Description: "Líder adicionado à célula " + cell.Name,
			After:       map[string]string{"cell_id": cellID, "user_id": userID},
		})
	})
}

func (s *Service) RemoveLeader(ctx context.Context, actor authz.Caller, cellID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, cellID)
		if err != nil {
			return err
		}
		if err := authorizeOn(tx, actor, authz.CellLeadersManage, cell); err != nil {
			return err
		}

		res := tx.Where("cell_id = ? AND user_id = ?", cellID, userID).Delete(&models.CellLeader{})
		if res.Error != nil {
			return apperr.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("Usuário não é líder desta célula")
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  "cell_leader",
			EntityID:    userID,
			Action:      models.AuditActionDelete,
			Description: "Líder removido da célula " + cell.Name,
			Before:      map[string]string{"cell_id": cellID, "user_id": userID},
		})
	})
}
