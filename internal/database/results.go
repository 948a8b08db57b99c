// internal/database/results.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/landlord/internal/models"
)

// RecordGameResults persists the final outcome of a finished room: a games
// row plus one game_results row per player with their closing net worth.
func RecordGameResults(ctx context.Context, roomID uuid.UUID, players []*models.Player, netWorth map[uuid.UUID]int, winnerID uuid.UUID) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, status, winner_id)
			VALUES ($1, 'completed', $2)
			ON CONFLICT (id) DO UPDATE SET status = 'completed', winner_id = $2
		`
		if _, e := tx.Exec(ctx, upsertGame, roomID, winnerID); e != nil {
			return e
		}

		for _, pl := range players {
			q := `
				INSERT INTO game_results (game_id, player_id, player_name, net_worth, bankrupt, did_win)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (game_id, player_id)
				DO UPDATE SET net_worth=$4, bankrupt=$5, did_win=$6
			`
			if _, e := tx.Exec(ctx, q, roomID, pl.ID, pl.Name, netWorth[pl.ID], pl.Bankrupt, pl.ID == winnerID); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert game results: %w", err)
	}
	return nil
}

// InsertGameLogBatch writes a batch of historian log rows in one transaction.
func InsertGameLogBatch(ctx context.Context, rows [][]interface{}) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO game_log (room_id, log_index, actor, entry_type, message, created_at)
			VALUES ($1, $2, $3, $4, $5, to_timestamp($6::double precision / 1000))
			ON CONFLICT DO NOTHING
		`
		for _, row := range rows {
			if _, err := tx.Exec(ctx, q, row...); err != nil {
				return err
			}
		}
		return nil
	})
}
