package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/game"
	pgloader "quizshow-service/internal/infra/postgres"
	pgmigrations "quizshow-service/internal/infra/postgres/migrations"
	infraredis "quizshow-service/internal/infra/redis"
	"quizshow-service/internal/statestore"
)

func TestGameSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestionSet(t, ctx, pgURL, sampleQuestionSet())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuestionLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	questionRepo := infraredis.NewQuestionRepository(redisClient, loader, 5*time.Minute)
	store := infraredis.NewStore(redisClient, 5*time.Minute)

	set, err := questionRepo.GetQuestionSet(ctx, "set-1")
	if err != nil {
		t.Fatalf("load question set: %v", err)
	}
	if len(set.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(set.Questions))
	}

	const room = "314159"
	host, err := game.NewHost(ctx, store, room, set.Questions)
	if err != nil {
		t.Fatalf("start host: %v", err)
	}
	defer host.Close()

	alice, err := game.NewObserver(ctx, store, room, domain.Player{ID: "p-alice", Name: "Alice", JoinedAt: time.Now()})
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	defer alice.Close()
	bob, err := game.NewObserver(ctx, store, room, domain.Player{ID: "p-bob", Name: "Bob", JoinedAt: time.Now().Add(time.Millisecond)})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	defer bob.Close()

	// Joins travel through redis pub/sub before the host counts them.
	waitFor(t, func() bool {
		view, err := host.View(ctx)
		return err == nil && view.PlayerCount == 2
	}, "host never saw both players")

	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := host.RevealQuestion(ctx); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	waitFor(t, func() bool {
		view, err := alice.View(ctx)
		return err == nil && view.Phase == domain.PhaseAnswering
	}, "alice never saw the answering phase")
	waitFor(t, func() bool {
		view, err := bob.View(ctx)
		return err == nil && view.Phase == domain.PhaseAnswering
	}, "bob never saw the answering phase")

	if err := alice.SubmitAnswer(ctx, 1); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if err := bob.SubmitAnswer(ctx, 0); err != nil {
		t.Fatalf("bob submit: %v", err)
	}

	waitFor(t, func() bool {
		view, err := host.View(ctx)
		return err == nil && view.ResponseCounts[0] == 2
	}, "host never counted both responses")

	if err := host.ShowResults(ctx); err != nil {
		t.Fatalf("results: %v", err)
	}
	if err := host.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}

	var leaderboard []domain.Standing
	waitFor(t, func() bool {
		return store.Get(ctx, statestore.LeaderboardPath(room), &leaderboard) == nil && len(leaderboard) == 2
	}, "leaderboard never published")

	if leaderboard[0].PlayerID != "p-alice" || leaderboard[0].TotalScore != 10 {
		t.Fatalf("expected alice leading with 10, got %+v", leaderboard)
	}
	if leaderboard[1].PlayerID != "p-bob" || leaderboard[1].TotalScore != -5 {
		t.Fatalf("expected bob at -5, got %+v", leaderboard)
	}

	waitFor(t, func() bool {
		view, err := alice.View(ctx)
		return err == nil && view.Phase == domain.PhaseFinished && len(view.Leaderboard) == 2
	}, "alice never saw the final leaderboard")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quizshow", "POSTGRES_PASSWORD": "quizshowpass", "POSTGRES_DB": "quizshowdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quizshow:quizshowpass@%s:%s/quizshowdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestionSet(t *testing.T, ctx context.Context, dsn string, set domain.QuestionSet) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal question set: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO question_sets (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, set.ID, string(data)); err != nil {
		t.Fatalf("insert question set: %v", err)
	}
}

func sampleQuestionSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID: "set-1",
		Questions: []domain.Question{
			{
				Index:            0,
				Text:             "What is 2 + 2?",
				Options:          []string{"3", "4", "5"},
				CorrectIndex:     1,
				TimeLimitSeconds: 30,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
