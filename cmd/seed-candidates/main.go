package main

import (
	"context"
	"fmt"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/database"
	"github.com/assessly/assessly-backend/internal/logger"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	candidateRepo := repository.NewCandidateRepository(pool)

	fmt.Println("=== Seeding 20 Candidates ===")

	names := []string{
		"Alice Brennan", "Ben Okafor", "Carla Mendes", "Daniel Wu", "Elena Petrova",
		"Felix Hartmann", "Grace Lin", "Hassan Ali", "Imani Jones", "Jonas Berg",
		"Keiko Tanaka", "Liam Murphy", "Mina Park", "Noah Fischer", "Olga Ivanova",
		"Pedro Alvarez", "Quinn Taylor", "Rosa Silva", "Samir Patel", "Tara Nguyen",
	}

	// One shared seed password keeps local testing simple.
	hash, err := bcrypt.GenerateFromPassword([]byte("candidate123"), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash seed password")
	}

	successCount := 0
	for i, name := range names {
		candidate := &model.Candidate{
			Email:        fmt.Sprintf("candidate%d@example.com", i+1),
			Name:         name,
			PasswordHash: string(hash),
		}

		if err := candidateRepo.Create(ctx, candidate); err != nil {
			fmt.Printf("Skipping %s: %v\n", candidate.Email, err)
			continue
		}
		successCount++
	}

	fmt.Printf("Seeded %d of %d candidates (password: candidate123)\n", successCount, len(names))
}
