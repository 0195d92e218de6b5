package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"notebookCollab/backend/config"
	"notebookCollab/backend/internal/cache"
	"notebookCollab/backend/internal/collab"
	"notebookCollab/backend/internal/httpapi"
	"notebookCollab/backend/internal/store"
	"notebookCollab/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: port=%d redis=%s kafka=%v topic=%s", cfg.Running.Port, cfg.Redis.Addr, cfg.Kafka.Brokers, cfg.Kafka.Topic)

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	// 快照表走 database/sql，操作日志走 gorm
	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	notebookStore := store.NewNotebookStore(db)
	if err = notebookStore.Migrate(context.Background()); err != nil {
		log.Fatalf("migrate notebooks failed: %v", err)
	}

	gdb, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	opLog := store.NewOperationLog(gdb)
	if err = opLog.AutoMigrate(); err != nil {
		log.Fatalf("migrate operations failed: %v", err)
	}

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	kafkaSem := collab.NewSemaphoreControl(collab.MaxSemaphore)
	wsSem := collab.NewSemaphoreControl(collab.MaxSemaphore)

	dispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)
	defer dispatcher.Close()

	presence := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presence)
	svc := collab.NewInMemoryService(collab.Options{
		RingCapacity:  cfg.Collab.RingCapacity,
		SnapshotEvery: cfg.Collab.SnapshotEvery,
		Snapshots:     notebookStore,
		Log:           opLog,
		Cache:         cache.NewSnapshotCache(rdb),
		Publisher:     dispatcher,
		OnApplied:     hub.Publish,
	})

	r := httpapi.NewRouter(httpapi.Deps{
		Service:    svc,
		Presence:   presence,
		Owners:     notebookStore,
		WS:         ws.NewManager(hub, svc, wsSem),
		AuthSecret: cfg.Auth.Secret,
	})

	if err = r.Run(fmt.Sprintf(":%d", cfg.Running.Port)); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
