//go:build integration

package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	postgresImage = "postgres:16-alpine"
	readyTimeout  = 45 * time.Second
)

// startPostgresContainer runs a throwaway Postgres through the docker CLI on a
// host port picked by docker, and returns its URL and a cleanup func.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	name := fmt.Sprintf("medipatient-it-%d", time.Now().UnixNano())
	out, err := docker(ctx, "run", "-d", "--rm", "--name", name,
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=medipatient",
		"-e", "POSTGRES_PASSWORD=medipatient",
		"-e", "POSTGRES_DB=medipatient",
		postgresImage,
	)
	if err != nil {
		return "", nil, err
	}
	id := out
	cleanup := func() { _, _ = docker(context.Background(), "rm", "-f", id) }

	// "127.0.0.1:49153"
	addr, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		cleanup()
		return "", nil, err
	}
	addr, _, _ = strings.Cut(addr, "\n")

	url := fmt.Sprintf("postgres://medipatient:medipatient@%s/medipatient?sslmode=disable", addr)
	if err := waitForPostgres(ctx, url); err != nil {
		cleanup()
		return "", nil, err
	}
	return url, cleanup, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// waitForPostgres polls until the server answers a query.
func waitForPostgres(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, url)
		if err == nil {
			var one int
			err = conn.QueryRow(ctx, "SELECT 1").Scan(&one)
			_ = conn.Close(ctx)
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", readyTimeout, lastErr)
		case <-tick.C:
		}
	}
}
