package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"gigflow/contract"
	"gigflow/db"
	"gigflow/job"
	"gigflow/payment"
	"gigflow/profile"
	"gigflow/report"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	jobRepo := job.NewRepository(pool)

	server := &Server{
		profileService:    profile.NewService(profile.NewRepository(pool), jwtSecret),
		contractService:   contract.NewService(contract.NewRepository(pool)),
		jobService:        jobRepo,
		settlementService: payment.NewService(pool, jobRepo, nil),
		reportService:     report.NewRepository(pool),
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log.Printf("api listening on %s", addr)
	if err := http.ListenAndServe(addr, server.routes()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
