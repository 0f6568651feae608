package main

import (
	"context"
	"log"
	"time"

	"github.com/quocanhngo/habitnudge/internal/config"
	"github.com/quocanhngo/habitnudge/internal/engine"
	"github.com/quocanhngo/habitnudge/internal/model"
	"github.com/quocanhngo/habitnudge/internal/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// writer is implemented by both store backends.
type writer interface {
	Upsert(ctx context.Context, rec model.UserRecord) error
	UpsertRaw(ctx context.Context, key string, raw []byte) error
}

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx := context.Background()
	var store writer

	switch cfg.Store.Backend {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
		store = repository.NewRedisRepository(rdb, cfg.Store.RedisPrefix)
	default:
		// Force DB logging off to avoid noise
		db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		log.Println("✅ Connected to Database")
		store = repository.NewKVRepository(db, cfg.Store.Table)
	}

	now := time.Now().In(loc)
	today := engine.DateOf(now)
	reminder := engine.ClockString(now)

	log.Printf("🌱 Seeding fixture users (today=%s, reminder=%s)...", today, reminder)
	for _, rec := range fixtures(today, reminder) {
		if err := store.Upsert(ctx, rec); err != nil {
			log.Printf("❌ Failed to seed %s: %v", rec.ID, err)
			continue
		}
		log.Printf("✅ Seeded %s", rec.ID)
	}

	// Valid JSON of the wrong shape, so it also fits a jsonb column.
	if err := store.UpsertRaw(ctx, "seed-malformed", []byte(`{"pushToken": 42}`)); err != nil {
		log.Printf("❌ Failed to seed malformed row: %v", err)
	} else {
		log.Println("✅ Seeded seed-malformed")
	}

	log.Println("🎉 Seeding completed!")
}

// fixtures returns one user per engine outcome relative to today.
func fixtures(today engine.Date, reminder string) []model.UserRecord {
	ago := func(days ...int) []string {
		out := make([]string, len(days))
		for i, d := range days {
			out[i] = daysBefore(today, d)
		}
		return out
	}
	token := func(name string) string { return "ExponentPushToken[seed-" + name + "]" }

	return []model.UserRecord{
		{ID: "seed-daily", PushToken: token("daily"), NotificationsEnabled: true, ReminderTime: reminder},
		{ID: "seed-broke-streak", PushToken: token("broke"), NotificationsEnabled: true, CompletedDates: ago(3, 2, 1)},
		{ID: "seed-no-day-3", PushToken: token("day3"), NotificationsEnabled: true, CompletedDates: ago(3)},
		{ID: "seed-no-day-7", PushToken: token("day7"), NotificationsEnabled: true, CompletedDates: ago(9, 8, 7)},
		{ID: "seed-no-day-21", PushToken: token("day21"), NotificationsEnabled: true, CompletedDates: ago(21)},
		{ID: "seed-active", PushToken: token("active"), NotificationsEnabled: true, CompletedDates: ago(1, 0)},
		{ID: "seed-opted-out", PushToken: token("optout"), NotificationsEnabled: false, CompletedDates: ago(7)},
	}
}

func daysBefore(d engine.Date, n int) string {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -n)
	return engine.DateOf(t).String()
}
