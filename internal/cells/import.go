package cells

import (
	"context"
	"errors"
	"io"
	"strings"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/audit"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ImportSkip struct {
	Row    int    `json:"row"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Added   []string     `json:"added"`
	Skipped []ImportSkip `json:"skipped"`
}

// readEmails lê a primeira coluna da primeira aba. A primeira linha é
// cabeçalho quando vale "EMAIL"/"E-MAIL" ou não tem cara de endereço.
func readEmails(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("Planilha inválida")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("A planilha não tem abas")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation("Não foi possível ler a planilha")
	}

	emails := make([]string, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			emails[i] = strings.ToLower(strings.TrimSpace(row[0]))
		}
	}
	if len(emails) > 0 && isHeader(emails[0]) {
		emails[0] = ""
	}
	return emails, nil
}

func isHeader(cell string) bool {
	switch cell {
	case "email", "e-mail":
		return true
	}
	return cell != "" && !strings.Contains(cell, "@")
}

// ImportMembers adiciona à célula os usuários listados por email numa
// planilha. Linhas com problema são relatadas e não interrompem as demais.
func (s *Service) ImportMembers(ctx context.Context, actor authz.Caller, cellID string, r io.Reader) (*ImportResult, error) {
	emails, err := readEmails(r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Added: []string{}, Skipped: []ImportSkip{}}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadCell(tx, cellID)
		if err != nil {
			return err
		}
		if err := authorizeOn(tx, actor, authz.CellMembersManage, cell); err != nil {
			return err
		}

		seen := map[string]bool{}
		for i, email := range emails {
			if email == "" || seen[email] {
				continue
			}
			seen[email] = true
			skip := func(reason string) {
				res.Skipped = append(res.Skipped, ImportSkip{Row: i + 1, Email: email, Reason: reason})
			}

			var ids []string
			if err := tx.Model(&models.User{}).Where("email = ?", email).Pluck("id", &ids).Error; err != nil {
				return apperr.Internal(err)
			}
			if len(ids) == 0 {
				skip("Usuário não encontrado")
				continue
			}

			if err := addMember(tx, cell.ID, ids[0]); err != nil {
				var ae *apperr.Error
				if !errors.As(err, &ae) || (ae.Kind != apperr.KindConflict && ae.Kind != apperr.KindNotFound) {
					return err
				}
				skip(ae.Message)
				continue
			}
			res.Added = append(res.Added, ids[0])
		}

		if len(res.Added) == 0 {
			return nil
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.ID,
			EntityType:  "cell_member",
			EntityID:    cell.ID,
			Action:      models.AuditActionCreate,
			Description: "Membros importados para a célula " + cell.Name,
			After:       res.Added,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("members imported",
		zap.String("cell_id", cellID),
		zap.Int("added", len(res.Added)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}
