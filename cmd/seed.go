package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/zapflow/campaignd/internal/config"
	"github.com/zapflow/campaignd/internal/db"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo tenant, contacts and campaign",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo campaign data...")

		if err := seedSettings(sqlDB); err != nil {
			return err
		}
		if err := seedContacts(sqlDB); err != nil {
			return err
		}
		if err := seedCampaign(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

const demoTenantID = 1

// seedSettings writes pacing settings for the demo tenant (idempotent).
func seedSettings(dbx *sqlx.DB) error {
	settings := []struct {
		Key   string
		Value string
	}{
		{"messageInterval", "20"},
		{"longerIntervalAfter", "10"},
		{"greaterInterval", "60"},
		{"variables", `[{"key":"empresa","value":"Demo Ltda"}]`},
	}

	const q = `
INSERT INTO campaign_settings
    (tenant_id, ` + "`key`" + `, value, created_at, updated_at)
VALUES
    (?, ?, ?, NOW(3), NOW(3))
ON DUPLICATE KEY UPDATE
    value      = VALUES(value),
    updated_at = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, s := range settings {
		if _, err := tx.Exec(q, demoTenantID, s.Key, s.Value); err != nil {
			return fmt.Errorf("insert setting %q: %w", s.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	return nil
}

// seedContacts inserts a small deterministic contact list (idempotent).
func seedContacts(dbx *sqlx.DB) error {
	contacts := []struct {
		Name   string
		Number string
		Email  string
		Valid  bool
	}{
		{"Ana Souza", "+5511999000001", "ana@example.com", true},
		{"Bruno Lima", "+5511999000002", "bruno@example.com", true},
		{"Carla Dias", "+5511999000003", "carla@example.com", true},
		{"Diego Alves", "+5511999000004", "diego@example.com", false},
		{"Elisa Prado", "+5511999000005", "elisa@example.com", true},
	}

	const q = `
INSERT INTO contact_list_items
    (contact_list_id, name, number, email, is_whatsapp_valid, created_at, updated_at)
VALUES
    (1, ?, ?, ?, ?, NOW(3), NOW(3))
ON DUPLICATE KEY UPDATE
    name       = VALUES(name),
    email      = VALUES(email),
    is_whatsapp_valid = VALUES(is_whatsapp_valid),
    updated_at = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, c := range contacts {
		if _, err := tx.Exec(q, c.Name, c.Number, c.Email, c.Valid); err != nil {
			return fmt.Errorf("insert contact %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit contacts: %w", err)
	}
	return nil
}

// seedCampaign creates one PROGRAMADA campaign due a minute from now.
func seedCampaign(dbx *sqlx.DB) error {
	const q = `
INSERT INTO campaigns
    (id, tenant_id, name, contact_list_id, account_id, status, confirmation,
     scheduled_at, message1, message2, created_at, updated_at)
VALUES
    (1, ?, 'Demo launch', 1, 1, 'PROGRAMADA', FALSE, ?, ?, ?, NOW(3), NOW(3))
ON DUPLICATE KEY UPDATE
    scheduled_at = VALUES(scheduled_at),
    status       = 'PROGRAMADA',
    updated_at   = VALUES(updated_at)
`
	msg1 := "Oi {nome}! A {empresa} tem uma novidade para o numero {numero}."
	msg2 := "Ola {nome}, confira a novidade da {empresa}!"
	if _, err := dbx.Exec(q, demoTenantID, time.Now().Add(time.Minute), msg1, msg2); err != nil {
		return fmt.Errorf("insert demo campaign: %w", err)
	}
	return nil
}
