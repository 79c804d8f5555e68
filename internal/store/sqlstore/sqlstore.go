// Package sqlstore implements store.Store on GORM for postgres and sqlite.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"raffle-system/internal/store"
	"raffle-system/models"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateRaffle(ctx context.Context, raffle *models.Raffle) error {
	if raffle.ID == "" {
		raffle.ID = uuid.NewString()
	}
	row, err := raffleToRow(raffle)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("sqlstore: create raffle: %w", err)
	}
	return nil
}

func (s *Store) ListRaffles(ctx context.Context) ([]*models.Raffle, error) {
	var rows []raffleRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: list raffles: %w", err)
	}

	raffles := make([]*models.Raffle, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, r)
	}
	return raffles, nil
}

func (s *Store) FindRaffleByID(ctx context.Context, id string) (*models.Raffle, error) {
	var row raffleRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find raffle: %w", err)
	}
	return row.toModel()
}

func (s *Store) ListOccupiedTicketNumbers(ctx context.Context, raffleID string) ([]int, error) {
	var numbers []int
	err := s.db.WithContext(ctx).
		Model(&saleRow{}).
		Where("raffle_id = ?", raffleID).
		Pluck("ticket_number", &numbers).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list occupied tickets: %w", err)
	}
	return numbers, nil
}

// InsertSale relies on the two unique indexes of the sales table. A failed
// insert writes nothing.
func (s *Store) InsertSale(ctx context.Context, sale *models.Sale) error {
	row := saleToRow(sale)
	row.ID = uuid.NewString()

	err := s.db.WithContext(ctx).Create(row).Error
	if err == nil {
		sale.ID = row.ID
		return nil
	}

	switch uniqueViolationField(err) {
	case store.FieldTicketNumber:
		return &store.ConflictError{Field: store.FieldTicketNumber, Err: err}
	case store.FieldCode:
		// Which index fails first is up to the database; a taken ticket
		// must win so callers reallocate instead of minting codes.
		taken, lookupErr := s.ticketTaken(ctx, sale.RaffleID, sale.TicketNumber)
		if lookupErr != nil {
			return fmt.Errorf("sqlstore: insert sale: %w", lookupErr)
		}
		if taken {
			return &store.ConflictError{Field: store.FieldTicketNumber, Err: err}
		}
		return &store.ConflictError{Field: store.FieldCode, Err: err}
	}
	return fmt.Errorf("sqlstore: insert sale: %w", err)
}

func (s *Store) ticketTaken(ctx context.Context, raffleID string, number int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&saleRow{}).
		Where("raffle_id = ? AND ticket_number = ?", raffleID, number).
		Count(&count).Error
	return count > 0, err
}

// RecountSoldCount recomputes tickets_sold in a single UPDATE so concurrent
// recounts never write a stale value over a fresh one.
func (s *Store) RecountSoldCount(ctx context.Context, raffleID string) (int, error) {
	var sold int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			"UPDATE raffles SET tickets_sold = (SELECT COUNT(*) FROM sales WHERE raffle_id = ?) WHERE id = ?",
			raffleID, raffleID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return tx.Model(&raffleRow{}).
			Where("id = ?", raffleID).
			Select("tickets_sold").
			Scan(&sold).Error
	})
	if errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: recount sold: %w", err)
	}
	return sold, nil
}

func (s *Store) UpdateRaffleIfStatus(ctx context.Context, raffleID string, expected models.RaffleStatus, patch models.RafflePatch) (bool, error) {
	updates := map[string]any{}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.Winner != nil {
		w, err := json.Marshal(patch.Winner)
		if err != nil {
			return false, err
		}
		updates["winner"] = datatypes.JSON(w)
	}
	if patch.DrawDate != nil {
		updates["draw_date"] = patch.DrawDate.UTC()
	}
	if len(updates) == 0 {
		return false, nil
	}

	res := s.db.WithContext(ctx).
		Model(&raffleRow{}).
		Where("id = ? AND status = ?", raffleID, string(expected)).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("sqlstore: update raffle: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ListSales(ctx context.Context, raffleID string) ([]*models.Sale, error) {
	var rows []saleRow
	err := s.db.WithContext(ctx).
		Where("raffle_id = ?", raffleID).
		Order("ticket_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list sales: %w", err)
	}

	sales := make([]*models.Sale, 0, len(rows))
	for i := range rows {
		sales = append(sales, rows[i].toModel())
	}
	return sales, nil
}

func (s *Store) FindSaleByCode(ctx context.Context, code string) (*models.Sale, error) {
	var row saleRow
	err := s.db.WithContext(ctx).First(&row, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find sale: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) SaveTicket(ctx context.Context, ticket *models.SavedTicket) error {
	row := savedToRow(ticket)
	row.ID = uuid.NewString()

	err := s.db.WithContext(ctx).Create(row).Error
	if uniqueViolationField(err) == store.FieldOwnerCode {
		return &store.ConflictError{Field: store.FieldOwnerCode, Err: err}
	}
	if err != nil {
		return fmt.Errorf("sqlstore: save ticket: %w", err)
	}
	ticket.ID = row.ID
	return nil
}

func (s *Store) ListSavedTickets(ctx context.Context, ownerKey string) ([]*models.SavedTicket, error) {
	var rows []savedTicketRow
	err := s.db.WithContext(ctx).
		Where("owner_key = ?", ownerKey).
		Order("saved_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list saved tickets: %w", err)
	}

	tickets := make([]*models.SavedTicket, 0, len(rows))
	for i := range rows {
		tickets = append(tickets, rows[i].toModel())
	}
	return tickets, nil
}

func (s *Store) DeleteSavedTicket(ctx context.Context, ownerKey, code string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("owner_key = ? AND code = ?", ownerKey, code).
		Delete(&savedTicketRow{})
	if res.Error != nil {
		return false, fmt.Errorf("sqlstore: delete saved ticket: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
