package cells

import (
	"context"
	"time"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/models"

	"gorm.io/gorm"
)

type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CellView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Leaders      []UserRef `json:"leaders"`
	SupervisorID *string   `json:"supervisor_id"`
	Supervisor   *UserRef  `json:"supervisor"`
	SecretaryID  *string   `json:"secretary_id"`
	Secretary    *UserRef  `json:"secretary"`
	MeetingDay   string    `json:"meeting_day"`
	MeetingTime  string    `json:"meeting_time"`
	Address      string    `json:"address"`
	MemberCount  int64     `json:"member_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type MemberView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	Role        models.UserRole   `json:"role"`
	Status      models.UserStatus `json:"status"`
	IsSecretary bool              `json:"is_secretary"`
}

// ListFilter aceita apenas igualdade simples.
type ListFilter struct {
	SupervisorID string
	LeaderID     string
	IDs          []string
}

func (s *Service) Get(ctx context.Context, id string) (*CellView, error) {
	views, err := s.List(ctx, ListFilter{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, apperr.NotFound("Célula não encontrada")
	}
	return &views[0], nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]CellView, error) {
	db := s.db.WithContext(ctx)

	q := db.Model(&models.Cell{})
	if f.SupervisorID != "" {
		q = q.Where("supervisor_id = ?", f.SupervisorID)
	}
	if f.LeaderID != "" {
		q = q.Where("id IN (?)", db.Model(&models.CellLeader{}).Select("cell_id").Where("user_id = ?", f.LeaderID))
	}
	if f.IDs != nil {
		q = q.Where("id IN ?", f.IDs)
	}

	var cells []models.Cell
	if err := q.Order("name ASC").Find(&cells).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if len(cells) == 0 {
		return []CellView{}, nil
	}

	return s.buildViews(db, cells)
}

func (s *Service) buildViews(db *gorm.DB, cells []models.Cell) ([]CellView, error) {
	ids := make([]string, 0, len(cells))
	for _, c := range cells {
		ids = append(ids, c.ID)
	}

	type leaderRow struct {
		CellID string `gorm:"column:cell_id"`
		ID     string `gorm:"column:id"`
		Name   string `gorm:"column:name"`
		Email  string `gorm:"column:email"`
	}
	var leaderRows []leaderRow
	if err := db.Table("cell_leaders").
		Select("cell_leaders.cell_id, users.id, users.name, users.email").
		Joins("JOIN users ON users.id = cell_leaders.user_id").
		Where("cell_leaders.cell_id IN ?", ids).
		Order("users.name ASC").
		Scan(&leaderRows).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	leaders := map[string][]UserRef{}
	for _, r := range leaderRows {
		leaders[r.CellID] = append(leaders[r.CellID], UserRef{ID: r.ID, Name: r.Name, Email: r.Email})
	}

	type countRow struct {
		CellID string `gorm:"column:cell_id"`
		Total  int64  `gorm:"column:total"`
	}
	var countRows []countRow
	if err := db.Model(&models.User{}).
		Select("cell_id, COUNT(*) AS total").
		Where("cell_id IN ?", ids).
		Group("cell_id").
		Scan(&countRows).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	counts := map[string]int64{}
	for _, r := range countRows {
		counts[r.CellID] = r.Total
	}

	var refIDs []string
	for _, c := range cells {
		if c.SupervisorID != nil {
			refIDs = append(refIDs, *c.SupervisorID)
		}
		if c.SecretaryID != nil {
			refIDs = append(refIDs, *c.SecretaryID)
		}
	}
	refs := map[string]UserRef{}
	if len(refIDs) > 0 {
		var users []models.User
		if err := db.Select("id", "name", "email").Where("id IN ?", refIDs).Find(&users).Error; err != nil {
			return nil, apperr.Internal(err)
		}
		for _, u := range users {
			refs[u.ID] = UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
		}
	}
	lookup := func(id *string) *UserRef {
		if id == nil {
			return nil
		}
		if r, ok := refs[*id]; ok {
			return &r
		}
		return nil
	}

	views := make([]CellView, 0, len(cells))
	for _, c := range cells {
		l := leaders[c.ID]
		if l == nil {
			l = []UserRef{}
		}
		views = append(views, CellView{
			ID:           c.ID,
			Name:         c.Name,
			Slug:         c.Slug,
			Leaders:      l,
			SupervisorID: c.SupervisorID,
			Supervisor:   lookup(c.SupervisorID),
			SecretaryID:  c.SecretaryID,
			Secretary:    lookup(c.SecretaryID),
			MeetingDay:   c.MeetingDay,
			MeetingTime:  c.MeetingTime,
			Address:      c.Address,
			MemberCount:  counts[c.ID],
			CreatedAt:    c.CreatedAt,
		})
	}
	return views, nil
}

func (s *Service) Members(ctx context.Context, actor authz.Caller, cellID string) ([]MemberView, error) {
	db := s.db.WithContext(ctx)
	cell, err := loadCell(db, cellID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOn(db, actor, authz.CellMembersView, cell); err != nil {
		return nil, err
	}
	return members(db, cell)
}

func members(db *gorm.DB, cell *models.Cell) ([]MemberView, error) {
	var users []models.User
	if err := db.Where("cell_id = ?", cell.ID).Order("name ASC").Find(&users).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	res := make([]MemberView, 0, len(users))
	for _, u := range users {
		res = append(res, MemberView{
			ID:          u.ID,
			Name:        u.Name,
			Email:       u.Email,
			Phone:       u.Phone,
			Role:        u.Role,
			Status:      u.Status,
			IsSecretary: cell.SecretaryID != nil && *cell.SecretaryID == u.ID,
		})
	}
	return res, nil
}
