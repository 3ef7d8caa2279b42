package dashboard

import (
	"context"
	"time"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/models"

	"go.uber.org/zap"
)

type PrayerChartPoint struct {
	Label string `json:"label"` // data / início da semana / mês
	Count int64  `json:"count"`
}

type PrayerChartResponse struct {
	CellID string             `json:"cell_id,omitempty"`
	Period string             `json:"period"` // daily | weekly | monthly
	From   string             `json:"from"`
	To     string             `json:"to"`
	Points []PrayerChartPoint `json:"points"`
	Total  int64              `json:"total"`
}

const maxChartCount = 366

func defaultCount(period string) (string, int) {
	switch period {
	case "weekly":
		return period, 8
	case "monthly":
		return period, 12
	default:
		return "daily", 7
	}
}

// PrayerChart agrupa orações por dia, semana ou mês. Sem cellID o gráfico
// é da organização inteira.
func (s *Service) PrayerChart(ctx context.Context, caller authz.Caller, cellID, period string, count int) (*PrayerChartResponse, error) {
	if cellID != "" {
		if err := s.cells.Authorize(ctx, caller, authz.CellPrayersView, cellID); err != nil {
			return nil, err
		}
	} else if err := authz.Authorize(caller, authz.OrganizationDashboard, authz.Resource{}).Err(); err != nil {
		return nil, err
	}

	period, def := defaultCount(period)
	if count == 0 {
		count = def
	}
	if count < 0 || count > maxChartCount {
		return nil, apperr.Validation("count inválido")
	}

	end := s.prayers.Today()
	var start time.Time
	var bucketOf func(time.Time) time.Time
	var step func(time.Time) time.Time

	switch period {
	case "weekly":
		// semanas terminam hoje
		start = end.AddDate(0, 0, -(7*count - 1))
		bucketOf = func(d time.Time) time.Time {
			days := int((d.Sub(start) + 12*time.Hour) / (24 * time.Hour))
			return start.AddDate(0, 0, days-days%7)
		}
		step = func(d time.Time) time.Time { return d.AddDate(0, 0, 7) }
	case "monthly":
		first := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())
		start = first.AddDate(0, -(count - 1), 0)
		bucketOf = func(d time.Time) time.Time {
			return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
		}
		step = func(d time.Time) time.Time { return d.AddDate(0, 1, 0) }
	default:
		start = end.AddDate(0, 0, -(count - 1))
		bucketOf = func(d time.Time) time.Time { return d }
		step = func(d time.Time) time.Time { return d.AddDate(0, 0, 1) }
	}

	type row struct {
		PrayedOn string `gorm:"column:prayed_on"`
		Total    int64  `gorm:"column:total"`
	}
	var rows []row
	q := s.db.WithContext(ctx).
		Table("prayer_logs").
		Select("prayer_logs.prayed_on AS prayed_on, COUNT(*) AS total").
		Where("prayer_logs.prayed_on BETWEEN ? AND ?", start.Format(models.DateLayout), end.Format(models.DateLayout))
	if cellID != "" {
		q = q.Joins("JOIN users ON users.id = prayer_logs.user_id").Where("users.cell_id = ?", cellID)
	}
	if err := q.Group("prayer_logs.prayed_on").Scan(&rows).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	labelOf := func(b time.Time) string {
		if period == "monthly" {
			return b.Format("2006-01")
		}
		return b.Format(models.DateLayout)
	}

	buckets := make(map[string]int64)
	var total int64
	for _, r := range rows {
		d, err := time.ParseInLocation(models.DateLayout, r.PrayedOn, end.Location())
		if err != nil {
			s.log.Warn("invalid prayed_on value", zap.String("value", r.PrayedOn))
			continue
		}
		buckets[labelOf(bucketOf(d))] += r.Total
		total += r.Total
	}

	// buckets vazios também aparecem, em ordem cronológica
	points := make([]PrayerChartPoint, 0, count)
	for b := start; !b.After(end); b = step(b) {
		label := labelOf(b)
		points = append(points, PrayerChartPoint{Label: label, Count: buckets[label]})
	}

	return &PrayerChartResponse{
		CellID: cellID,
		Period: period,
		From:   start.Format(models.DateLayout),
		To:     end.Format(models.DateLayout),
		Points: points,
		Total:  total,
	}, nil
}
