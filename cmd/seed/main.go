package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/doctor-availability-scheduling/internal/config"
	"github.com/hackgods/doctor-availability-scheduling/internal/db"
	"github.com/hackgods/doctor-availability-scheduling/internal/logging"
	"github.com/hackgods/doctor-availability-scheduling/internal/scheduling"
	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	var doctors, patients, days int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the doctor and patient directory with fake data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("seed requires STORE=postgres")
			}
			logger := logging.New(cfg.Env, cfg.LogLevel)
			return run(cmd.Context(), cfg, logger, doctors, patients, days)
		},
	}
	cmd.Flags().IntVar(&doctors, "doctors", 100, "number of doctors to create")
	cmd.Flags().IntVar(&patients, "patients", 9000, "number of patients to create")
	cmd.Flags().IntVar(&days, "window-days", 0, "declare a Morning and Evening window for each new doctor on this many upcoming days")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, doctors, patients, days int) error {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	doctorIDs, err := seedDoctors(ctx, pool, faker, logger, doctors)
	if err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	if err := seedPatients(ctx, pool, faker, logger, patients); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	if days > 0 {
		svc := scheduling.NewService(scheduling.NewPgRepository(pool), cfg, logger)
		if err := seedWindows(ctx, svc, logger, doctorIDs, days); err != nil {
			return fmt.Errorf("seed windows: %w", err)
		}
	}

	logger.Info().Msg("seed complete")
	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	ids := make([]uuid.UUID, 0, count)
	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			name := "Dr. " + faker.Name()
			spec := specialties[faker.Number(0, len(specialties)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, spec)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		rows := make([][]any, 0, end-offset)
		now := time.Now()
		for i := offset; i < end; i++ {
			rows = append(rows, []any{uuid.New(), faker.Name(), faker.Email(), now, now})
		}

		_, err := pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"id", "name", "email", "created_at", "updated_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}

		logger.Debug().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	logger.Info().Msg("patients seeded")
	return nil
}

// seedWindows goes through the service so that slots are generated exactly
// as the API would generate them.
func seedWindows(ctx context.Context, svc *scheduling.Service, logger zerolog.Logger, doctorIDs []uuid.UUID, days int) error {
	admin := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RoleAdmin}
	today := timemath.DateOf(time.Now())

	sessions := []struct {
		session    string
		start, end string
	}{
		{"Morning", "09:00", "12:00"},
		{"Evening", "17:00", "20:00"},
	}

	var windows, slots int
	for _, doctorID := range doctorIDs {
		for d := 1; d <= days; d++ {
			date := today.AddDays(d)
			for _, s := range sessions {
				_, generated, err := svc.DeclareAvailability(ctx, admin, doctorID, scheduling.WindowInput{
					Date:      date.String(),
					StartTime: s.start,
					EndTime:   s.end,
					Session:   s.session,
				})
				if err != nil {
					return fmt.Errorf("doctor %s on %s: %w", doctorID, date, err)
				}
				windows++
				slots += len(generated)
			}
		}
	}

	logger.Info().Int("windows", windows).Int("slots", slots).Msg("availability seeded")
	return nil
}
