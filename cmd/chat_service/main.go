package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	chatapp "festival_chat_service/internal/chat/app"
	chatrepo "festival_chat_service/internal/chat/repository"
	"festival_chat_service/internal/chat/router"
	memberapp "festival_chat_service/internal/member/app"
	memberrepo "festival_chat_service/internal/member/repository"
	"festival_chat_service/pkg/config"
	"festival_chat_service/pkg/database"
	"festival_chat_service/pkg/logger"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)

	ctx := context.Background()

	// 1. PostgreSQL (rooms / memberships / members / events)
	pgURI := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgPool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    pgURI,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL database after retries",
			zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	defer pgPool.Close()

	// 2. MongoDB (chat messages)
	mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%d",
		cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    mongoURI,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", mongoURI)), zap.Error(err))
	}
	defer mongo.Close(ctx)

	// 3. Redis Sentinel (ephemeral counters / tokens / pub-sub)
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	kv := database.NewRedisKeyValueStore(redisClient)

	festival := cfg.Festival
	if festival.NicknameStep == 0 {
		festival.NicknameStep = 3355
	}
	if festival.LocationTokenTTL == 0 {
		festival.LocationTokenTTL = 15 * time.Minute
	}
	if festival.ConsumedTokenTTL == 0 {
		festival.ConsumedTokenTTL = 5 * time.Second
	}

	// 4. Repository
	roomRepo := chatrepo.NewRoomRepository(pgPool)
	msgRepo := chatrepo.NewMongoChatMessageRepository(mongo.Database)
	cache := chatrepo.NewRoomCounterCache(kv, festival.NicknameStep)
	tokens := chatrepo.NewLocationTokenRegistry(kv, festival.LocationTokenTTL)
	pubsub := chatrepo.NewRedisPubSub(redisClient)
	memberRepo := memberrepo.NewMemberRepository(pgPool)
	refreshReg := memberrepo.NewRefreshTokenRegistry(kv, festival.SessionTTL, festival.ConsumedTokenTTL)

	// 5. UseCase
	admissionUC := chatapp.NewAdmissionUseCase(tokens, roomRepo)
	roomUC := chatapp.NewRoomUseCase(roomRepo, cache, admissionUC, pubsub)
	sendMessageUC := chatapp.NewSendMessageUseCase(roomRepo, msgRepo, cache, pubsub)
	authUC := memberapp.NewAuthUseCase(memberRepo, refreshReg)

	// 6. 背景排程
	scheduler := chatapp.NewScheduler()
	reconcile := chatapp.NewReconcileJob(kv, cache, roomRepo, msgRepo)
	staleKeys := chatapp.NewStaleKeyCleanupJob(kv, cache, roomRepo)
	likeRetention := chatapp.NewLikeKeyRetentionJob(kv, cache, msgRepo, festival.LikeRetention)
	lifecycle := chatapp.NewRoomLifecycleJob(roomRepo, cache,
		chatapp.NewCascadeDeletionCoordinator(cache, msgRepo, roomRepo),
		festival.EmptyRoomGrace, festival.InactivityWindow)

	mustRegister(scheduler, "reconcile", cfg.Jobs.ReconcileCron, reconcile.Run)
	mustRegister(scheduler, "stale_keys", cfg.Jobs.StaleKeyCron, staleKeys.Run)
	mustRegister(scheduler, "like_retention", cfg.Jobs.LikeRetentionCron, likeRetention.Run)
	mustRegister(scheduler, "room_lifecycle", cfg.Jobs.LifecycleCron, lifecycle.Run)
	scheduler.Start(ctx)

	// 7. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, &router.Handlers{
		Auth:      authUC,
		Admission: admissionUC,
		Room:      roomUC,
		Message:   sendMessageUC,
		Websocket: chatapp.NewChatWebsocketHandler(roomUC, sendMessageUC, pubsub),
	})

	port := ":" + cfg.Port
	log.Printf("Chat Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}

func mustRegister(s *chatapp.Scheduler, name, cron string, fn chatapp.JobFunc) {
	if err := s.Register(name, cron, fn); err != nil {
		logger.Log.Fatal("register job failed", zap.String("job", name), zap.Error(err))
	}
}
