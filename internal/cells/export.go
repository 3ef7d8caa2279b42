package cells

import (
	"context"
	"fmt"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/authz"

	"github.com/xuri/excelize/v2"
)

const rosterSheet = "Membros"

var rosterHeaders = []string{"Nome", "Email", "Telefone", "Papel", "Status", "Secretária"}

// ExportMembers gera a planilha .xlsx com os membros da célula.
func (s *Service) ExportMembers(ctx context.Context, actor authz.Caller, cellID string) ([]byte, string, error) {
	db := s.db.WithContext(ctx)
	cell, err := loadCell(db, cellID)
	if err != nil {
		return nil, "", err
	}
	if err := authorizeOn(db, actor, authz.CellMembersView, cell); err != nil {
		return nil, "", err
	}
	list, err := members(db, cell)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rosterSheet); err != nil {
		return nil, "", apperr.Internal(err)
	}

	for i, h := range rosterHeaders {
		ref, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(rosterSheet, ref, h); err != nil {
			return nil, "", apperr.Internal(err)
		}
	}

	for row, m := range list {
		secretary := ""
		if m.IsSecretary {
			secretary = "Sim"
		}
		values := []interface{}{m.Name, m.Email, m.Phone, string(m.Role), string(m.Status), secretary}
		ref, _ := excelize.CoordinatesToCellName(1, row+2)
		if err := f.SetSheetRow(rosterSheet, ref, &values); err != nil {
			return nil, "", apperr.Internal(err)
		}
	}

	if err := f.SetColWidth(rosterSheet, "A", "B", 30); err != nil {
		return nil, "", apperr.Internal(err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	return buf.Bytes(), fmt.Sprintf("membros-%s.xlsx", cell.Slug), nil
}
