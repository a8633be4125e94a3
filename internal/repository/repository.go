// Package repository provides Postgres-backed data access for scouting data.
package repository

import (
	"fmt"

	"github.com/yourusername/frc-picklist/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Teams *PostgresTeamRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Teams: NewPostgresTeamRepository(db),
	}, nil
}
