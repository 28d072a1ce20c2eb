package repository

import (
	"context"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProgramRepository handles coding program data access.
type ProgramRepository struct {
	pool *pgxpool.Pool
}

// NewProgramRepository creates a new ProgramRepository.
func NewProgramRepository(pool *pgxpool.Pool) *ProgramRepository {
	return &ProgramRepository{pool: pool}
}

// Create inserts a new program.
func (r *ProgramRepository) Create(ctx context.Context, p *model.Program) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO programs (title, statement, language)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		p.Title, p.Statement, p.Language,
	).Scan(&p.ID, &p.CreatedAt)
}

// GetByID retrieves a program by ID.
func (r *ProgramRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Program, error) {
	p := &model.Program{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, statement, language, created_at FROM programs WHERE id = $1`, id,
	).Scan(&p.ID, &p.Title, &p.Statement, &p.Language, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List retrieves all programs, newest first.
func (r *ProgramRepository) List(ctx context.Context) ([]model.Program, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, statement, language, created_at FROM programs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programs []model.Program
	for rows.Next() {
		var p model.Program
		if err := rows.Scan(&p.ID, &p.Title, &p.Statement, &p.Language, &p.CreatedAt); err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// AddTestCase attaches a hidden test case to a program.
func (r *ProgramRepository) AddTestCase(ctx context.Context, tc *model.ProgramTestCase) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO program_test_cases (program_id, stdin, expected_stdout, order_num)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		tc.ProgramID, tc.Stdin, tc.ExpectedStdout, tc.OrderNum,
	).Scan(&tc.ID)
}

// ListTestCases returns a program's hidden test cases in execution order.
func (r *ProgramRepository) ListTestCases(ctx context.Context, programID uuid.UUID) ([]model.ProgramTestCase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, program_id, stdin, expected_stdout, order_num
		 FROM program_test_cases
		 WHERE program_id = $1
		 ORDER BY order_num ASC`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []model.ProgramTestCase
	for rows.Next() {
		var tc model.ProgramTestCase
		if err := rows.Scan(&tc.ID, &tc.ProgramID, &tc.Stdin, &tc.ExpectedStdout, &tc.OrderNum); err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}
