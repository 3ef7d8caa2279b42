package dashboard

import (
	"context"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/cells"
	"celulas-backend/internal/models"
	"celulas-backend/internal/prayers"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MemberPanel struct {
	Cell    *cells.CellView `json:"cell"`
	Prayers prayers.Summary `json:"prayers"`
}

type CellStat struct {
	cells.CellView
	PrayersThisWeek int64 `json:"prayers_this_week"`
}

type OrganizationPanel struct {
	UsersByRole     map[models.UserRole]int64 `json:"users_by_role"`
	ActiveUsers     int64                     `json:"active_users"`
	InactiveUsers   int64                     `json:"inactive_users"`
	Cells           int64                     `json:"cells"`
	UnassignedUsers int64                     `json:"unassigned_users"`
	PrayersThisWeek int64                     `json:"prayers_this_week"`
}

// Response acumula painéis conforme o papel: cada papel vê também os
// painéis dos papéis abaixo dele.
type Response struct {
	Role         models.UserRole    `json:"role"`
	WeekStart    string             `json:"week_start"`
	Member       MemberPanel        `json:"member"`
	LedCells     []CellStat         `json:"led_cells,omitempty"`
	Supervised   []CellStat         `json:"supervised_cells,omitempty"`
	Organization *OrganizationPanel `json:"organization,omitempty"`
}

type Service struct {
	db      *gorm.DB
	cells   *cells.Service
	prayers *prayers.Service
	log     *zap.Logger
}

func NewService(db *gorm.DB, cellSvc *cells.Service, prayerSvc *prayers.Service, log *zap.Logger) *Service {
	return &Service{db: db, cells: cellSvc, prayers: prayerSvc, log: log}
}

func (s *Service) ForCaller(ctx context.Context, caller authz.Caller) (*Response, error) {
	resp := &Response{Role: caller.Role, WeekStart: s.prayers.WeekStart()}

	member, err := s.memberPanel(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	resp.Member = *member

	if caller.Role.AtLeast(models.RoleLider) {
		views, err := s.cells.List(ctx, cells.ListFilter{LeaderID: caller.ID})
		if err != nil {
			return nil, err
		}
		if resp.LedCells, err = s.withPrayers(ctx, views); err != nil {
			return nil, err
		}
	}

	if caller.Role.AtLeast(models.RoleSupervisor) {
		views, err := s.cells.List(ctx, cells.ListFilter{SupervisorID: caller.ID})
		if err != nil {
			return nil, err
		}
		if resp.Supervised, err = s.withPrayers(ctx, views); err != nil {
			return nil, err
		}
	}

	if authz.Authorize(caller, authz.OrganizationDashboard, authz.Resource{}).Allowed {
		if resp.Organization, err = s.organization(ctx); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func (s *Service) memberPanel(ctx context.Context, userID string) (*MemberPanel, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "cell_id").First(&user, "id = ?", userID).Error; err != nil {
		return nil, apperr.FromDB(err, "Usuário não encontrado")
	}

	panel := &MemberPanel{}
	if user.CellID != nil {
		view, err := s.cells.Get(ctx, *user.CellID)
		if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}
		panel.Cell = view
	}

	sum, err := s.prayers.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	panel.Prayers = *sum
	return panel, nil
}

// withPrayers soma as orações da semana dos membros de cada célula.
func (s *Service) withPrayers(ctx context.Context, views []cells.CellView) ([]CellStat, error) {
	if len(views) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}

	type row struct {
		CellID string `gorm:"column:cell_id"`
		Total  int64  `gorm:"column:total"`
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("prayer_logs").
		Select("users.cell_id AS cell_id, COUNT(*) AS total").
		Joins("JOIN users ON users.id = prayer_logs.user_id").
		Where("users.cell_id IN ? AND prayer_logs.prayed_on >= ?", ids, s.prayers.WeekStart()).
		Group("users.cell_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	totals := make(map[string]int64, len(rows))
	for _, r := range rows {
		totals[r.CellID] = r.Total
	}

	stats := make([]CellStat, 0, len(views))
	for _, v := range views {
		stats = append(stats, CellStat{CellView: v, PrayersThisWeek: totals[v.ID]})
	}
	return stats, nil
}

func (s *Service) organization(ctx context.Context) (*OrganizationPanel, error) {
	db := s.db.WithContext(ctx)
	panel := &OrganizationPanel{UsersByRole: make(map[models.UserRole]int64, len(models.Roles))}
	for _, r := range models.Roles {
		panel.UsersByRole[r] = 0
	}

	type roleRow struct {
		Role  models.UserRole `gorm:"column:role"`
		Total int64           `gorm:"column:total"`
	}
	var roles []roleRow
	if err := db.Model(&models.User{}).Select("role, COUNT(*) AS total").Group("role").Scan(&roles).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	for _, r := range roles {
		panel.UsersByRole[r.Role] = r.Total
	}

	if err := db.Model(&models.User{}).Where("status = ?", models.StatusActive).Count(&panel.ActiveUsers).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := db.Model(&models.User{}).Where("status = ?", models.StatusInactive).Count(&panel.InactiveUsers).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := db.Model(&models.Cell{}).Count(&panel.Cells).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := db.Model(&models.User{}).
		Where("cell_id IS NULL AND role = ? AND status = ?", models.RoleMembro, models.StatusActive).
		Count(&panel.UnassignedUsers).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	n, err := s.prayers.CountSince(ctx, nil, s.prayers.WeekStart())
	if err != nil {
		return nil, err
	}
	panel.PrayersThisWeek = n
	return panel, nil
}
