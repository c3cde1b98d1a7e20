// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mycarecoach/coachos/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// candidateColumns is shared by every statement that yields a reminder
// candidate. $tz is the product timezone the date/heure columns are in.
const candidateColumns = `
	s.id, s.coach_id, s.client_id,
	COALESCE(cl.email, ''), COALESCE(cl.prenom, ''),
	TRIM(COALESCE(co.prenom, '') || ' ' || COALESCE(co.nom, '')),
	(s.date + s.heure) AT TIME ZONE $%d,
	COALESCE(s.duree, 60), COALESCE(s.type, 'autre')
	FROM seances s
	JOIN clients cl ON cl.id = s.client_id
	JOIN coachs co ON co.id = s.coach_id`

// registerPreparedStatements registers all statements the reminder job and
// the API use.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Reminders: candidate selection
		"reminder_upcoming_sessions": "SELECT" + fmt.Sprintf(candidateColumns, 3) + `
			WHERE s.fait = false
			  AND (s.date + s.heure) AT TIME ZONE $3 >= $1
			  AND (s.date + s.heure) AT TIME ZONE $3 < $2
			ORDER BY s.date, s.heure`,
		"reminder_ended_sessions": "SELECT" + fmt.Sprintf(candidateColumns, 3) + `
			WHERE (s.date + s.heure + make_interval(mins => COALESCE(s.duree, 60))) AT TIME ZONE $3 >= $1
			  AND (s.date + s.heure + make_interval(mins => COALESCE(s.duree, 60))) AT TIME ZONE $3 < $2
			ORDER BY s.date, s.heure`,
		"reminder_session_by_id": "SELECT" + fmt.Sprintf(candidateColumns, 2) + `
			WHERE s.id = $1`,

		// Reminders: preferences and dedup
		"reminder_coach_configs": `
			SELECT coach_id,
			       COALESCE(rappel_24h, true), COALESCE(rappel_1h, false),
			       COALESCE(confirmation_seance, true), COALESCE(nouvelle_seance, true)
			FROM coach_config
			WHERE coach_id = ANY($1::uuid[])`,
		"reminder_existing_log_keys": `
			SELECT DISTINCT l.seance_id, l.type
			FROM email_logs l
			JOIN unnest($1::uuid[], $2::text[]) AS k(seance_id, type)
			  ON l.seance_id = k.seance_id AND l.type = k.type
			WHERE l.statut IN ('envoye', 'en_attente')`,
		"reminder_append_log": `
			INSERT INTO email_logs (id, coach_id, client_id, seance_id, type, statut, erreur, date_envoi)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW())`,

		// API: email log history
		"email_logs_by_coach": `
			SELECT l.id, l.client_id, l.seance_id, l.type, l.statut, COALESCE(l.erreur, ''), l.date_envoi,
			       COALESCE(cl.prenom, ''), COALESCE(cl.nom, ''), COALESCE(cl.email, ''),
			       s.date, s.heure
			FROM email_logs l
			LEFT JOIN clients cl ON cl.id = l.client_id
			LEFT JOIN seances s ON s.id = l.seance_id
			WHERE l.coach_id = $1
			  AND ($2::text IS NULL OR l.statut = $2)
			  AND ($3::text IS NULL OR l.type = $3)
			ORDER BY l.date_envoi DESC
			LIMIT $4 OFFSET $5`,
		"email_log_stats": `
			SELECT statut, total FROM mv_email_log_stats WHERE coach_id = $1`,

		// API: coach settings
		"coach_config_by_id": `
			SELECT COALESCE(rappel_24h, true), COALESCE(rappel_1h, false),
			       COALESCE(confirmation_seance, true), COALESCE(nouvelle_seance, true)
			FROM coach_config WHERE coach_id = $1`,
		"coach_config_upsert": `
			INSERT INTO coach_config (coach_id, rappel_24h, rappel_1h, confirmation_seance, nouvelle_seance, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (coach_id) DO UPDATE SET
				rappel_24h = EXCLUDED.rappel_24h,
				rappel_1h = EXCLUDED.rappel_1h,
				confirmation_seance = EXCLUDED.confirmation_seance,
				nouvelle_seance = EXCLUDED.nouvelle_seance,
				updated_at = NOW()`,
		"coach_contact": `
			SELECT COALESCE(email, ''), TRIM(COALESCE(prenom, '') || ' ' || COALESCE(nom, ''))
			FROM coachs WHERE id = $1`,
		"session_coach": `
			SELECT coach_id FROM seances WHERE id = $1`,

		// Maintenance: new sessions whose notice was never handled. The
		// 1 minute lag leaves fresh rows to the listener.
		"sessions_missing_new_notice": `
			SELECT s.id
			FROM seances s
			LEFT JOIN coach_config cc ON cc.coach_id = s.coach_id
			WHERE s.created_at > NOW() - INTERVAL '2 hours'
			  AND s.created_at < NOW() - INTERVAL '1 minute'
			  AND COALESCE(cc.nouvelle_seance, true)
			  AND NOT EXISTS (
				SELECT 1 FROM email_logs l
				WHERE l.seance_id = s.id
				  AND l.type = 'nouvelle_seance'
				  AND l.statut IN ('envoye', 'en_attente')
			  )
			ORDER BY s.created_at`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
