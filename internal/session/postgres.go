package session

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) SaveSession(token string, id Identity) error {
	query := `
		INSERT INTO client_session (id, token, expert_id, expert_name, phone, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET token = $1, expert_id = $2, expert_name = $3, phone = $4, updated_at = now()`

	if _, err := s.db.Exec(query, token, id.ExpertID, id.ExpertName, id.Phone); err != nil {
		return fmt.Errorf("error saving session: %v", err)
	}
	return nil
}

func (s *PostgresStorage) LoadSession() (string, Identity, error) {
	query := `SELECT token, expert_id, expert_name, phone FROM client_session WHERE id = 1`

	var token string
	var id Identity
	err := s.db.QueryRow(query).Scan(&token, &id.ExpertID, &id.ExpertName, &id.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", Identity{}, ErrNoSession
	}
	if err != nil {
		return "", Identity{}, fmt.Errorf("error loading session: %v", err)
	}
	return token, id, nil
}

func (s *PostgresStorage) DeleteSession() error {
	if _, err := s.db.Exec(`DELETE FROM client_session WHERE id = 1`); err != nil {
		return fmt.Errorf("error deleting session: %v", err)
	}
	return nil
}

func (s *PostgresStorage) SavePhone(chatID int64, phone string) error {
	query := `
		INSERT INTO user_phones (chat_id, phone, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chat_id) DO UPDATE
		SET phone = $2, updated_at = now()`

	if _, err := s.db.Exec(query, chatID, phone); err != nil {
		return fmt.Errorf("error saving phone: %v", err)
	}
	return nil
}

func (s *PostgresStorage) LoadPhone(chatID int64) (string, error) {
	var phone string
	err := s.db.QueryRow(`SELECT phone FROM user_phones WHERE chat_id = $1`, chatID).Scan(&phone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error loading phone: %v", err)
	}
	return phone, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
