package prayers

import (
	"context"
	"time"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// weekDays é a janela de "weekly": hoje e os 6 dias anteriores.
const weekDays = 7

// Recorder recebe eventos de registro para métricas.
type Recorder interface {
	PrayerLogged(alreadyLogged bool)
}

// CellAuthorizer verifica o acesso do chamador a uma célula.
type CellAuthorizer interface {
	Authorize(ctx context.Context, actor authz.Caller, action authz.Action, cellID string) error
}

type LogResult struct {
	Date          string `json:"date"`
	AlreadyLogged bool   `json:"already_logged"`
}

type Summary struct {
	LoggedToday bool  `json:"logged_today"`
	Weekly      int64 `json:"weekly"`
	Total       int64 `json:"total"`
}

type MemberSummary struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Weekly      int64  `json:"weekly"`
	LoggedToday bool   `json:"logged_today"`
}

type Service struct {
	db       *gorm.DB
	loc      *time.Location
	now      func() time.Time
	cells    CellAuthorizer
	recorder Recorder
	log      *zap.Logger
}

func NewService(db *gorm.DB, loc *time.Location, cells CellAuthorizer, recorder Recorder, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, loc: loc, now: time.Now, cells: cells, recorder: recorder, log: log}
}

// WithClock troca o relógio usado para calcular "hoje".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) today() time.Time {
	n := s.now().In(s.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Service) weekRange() (string, string) {
	today := s.today()
	return today.AddDate(0, 0, -(weekDays - 1)).Format(models.DateLayout), today.Format(models.DateLayout)
}

// LogDaily registra a oração de hoje. O índice único (user_id, prayed_on)
// torna a segunda chamada do dia um no-op, mesmo sob concorrência.
func (s *Service) LogDaily(ctx context.Context, userID string) (*LogResult, error) {
	date := s.today().Format(models.DateLayout)

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "prayed_on"}},
			DoNothing: true,
		}).
		Create(&models.PrayerLog{UserID: userID, PrayedOn: date})
	if res.Error != nil {
		return nil, apperr.Internal(res.Error)
	}

	already := res.RowsAffected == 0
	if s.recorder != nil {
		s.recorder.PrayerLogged(already)
	}
	if !already {
		s.log.Debug("prayer logged", zap.String("user_id", userID), zap.String("date", date))
	}
	return &LogResult{Date: date, AlreadyLogged: already}, nil
}

func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	db := s.db.WithContext(ctx)
	from, to := s.weekRange()

	var sum Summary
	if err := db.Model(&models.PrayerLog{}).Where("user_id = ?", userID).Count(&sum.Total).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := db.Model(&models.PrayerLog{}).
		Where("user_id = ? AND prayed_on BETWEEN ? AND ?", userID, from, to).
		Count(&sum.Weekly).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	var today int64
	if err := db.Model(&models.PrayerLog{}).
		Where("user_id = ? AND prayed_on = ?", userID, to).
		Count(&today).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	sum.LoggedToday = today > 0
	return &sum, nil
}

// History lista as datas registradas no intervalo (inclusive, YYYY-MM-DD).
// Sem intervalo, usa os últimos 30 dias.
func (s *Service) History(ctx context.Context, userID, from, to string) ([]string, error) {
	today := s.today()
	if to == "" {
		to = today.Format(models.DateLayout)
	}
	if from == "" {
		from = today.AddDate(0, 0, -29).Format(models.DateLayout)
	}

	fromDate, err := time.ParseInLocation(models.DateLayout, from, s.loc)
	if err != nil {
		return nil, apperr.Validation("Parâmetro 'from' inválido, use AAAA-MM-DD")
	}
	toDate, err := time.ParseInLocation(models.DateLayout, to, s.loc)
	if err != nil {
		return nil, apperr.Validation("Parâmetro 'to' inválido, use AAAA-MM-DD")
	}
	if toDate.Before(fromDate) {
		return nil, apperr.Validation("'from' deve ser anterior a 'to'")
	}

	dates := []string{}
	if err := s.db.WithContext(ctx).Model(&models.PrayerLog{}).
		Where("user_id = ? AND prayed_on BETWEEN ? AND ?", userID, from, to).
		Order("prayed_on ASC").
		Pluck("prayed_on", &dates).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return dates, nil
}

// CellSummary conta as orações da semana de cada membro da célula.
func (s *Service) CellSummary(ctx context.Context, actor authz.Caller, cellID string) ([]MemberSummary, error) {
	if err := s.cells.Authorize(ctx, actor, authz.CellPrayersView, cellID); err != nil {
		return nil, err
	}
	from, to := s.weekRange()

	type row struct {
		UserID string `gorm:"column:user_id"`
		Name   string `gorm:"column:name"`
		Weekly int64  `gorm:"column:weekly"`
		Today  int64  `gorm:"column:today"`
	}
	var rows []row
	err := s.db.WithContext(ctx).Raw(`
		SELECT u.id AS user_id, u.name AS name,
			COUNT(p.id) AS weekly,
			COALESCE(SUM(CASE WHEN p.prayed_on = ? THEN 1 ELSE 0 END), 0) AS today
		FROM users u
		LEFT JOIN prayer_logs p
			ON p.user_id = u.id AND p.prayed_on BETWEEN ? AND ?
		WHERE u.cell_id = ?
		GROUP BY u.id, u.name
		ORDER BY u.name ASC
	`, to, from, to, cellID).Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}

	res := make([]MemberSummary, 0, len(rows))
	for _, r := range rows {
		res = append(res, MemberSummary{
			UserID:      r.UserID,
			Name:        r.Name,
			Weekly:      r.Weekly,
			LoggedToday: r.Today > 0,
		})
	}
	return res, nil
}

// CountSince conta orações a partir da data. userIDs nil significa todos.
func (s *Service) CountSince(ctx context.Context, userIDs []string, from string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.PrayerLog{}).Where("prayed_on >= ?", from)
	if userIDs != nil {
		if len(userIDs) == 0 {
			return 0, nil
		}
		q = q.Where("user_id IN ?", userIDs)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// Today é a meia-noite de hoje no fuso configurado.
func (s *Service) Today() time.Time {
	return s.today()
}

// WeekStart é o primeiro dia da janela semanal.
func (s *Service) WeekStart() string {
	from, _ := s.weekRange()
	return from
}
