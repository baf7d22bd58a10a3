package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/config"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/delivery"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/handlers"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/middleware"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/presence"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/repository"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/services"
	chatws "github.com/ziko247/threads-clone-finale-pfa-main247/internal/websocket"
)

// RegisterRoutes wires the messaging core. The returned deduplicator owns a
// background sweep; callers stop it on shutdown.
func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) *delivery.Deduplicator {
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var storageService services.StorageService
	if cfg.SupabaseURL != "" && cfg.SupabaseBucket != "" && cfg.SupabaseServiceKey != "" {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	registry := presence.NewRegistry()
	dedup := delivery.NewDeduplicator(cfg.DedupRetention, cfg.DedupSweepInterval)
	hub := chatws.NewHub(registry, dedup)

	chatService := services.NewChatService(conversationRepo, messageRepo, userRepo, postRepo, storageService)
	chatHandler := handlers.NewChatHandler(chatService, hub, cfg.JWTSecret)

	api := app.Group("/api")

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)

	messages := authProtected.Group("/messages")
	messages.Post("", chatHandler.SendMessage)
	messages.Get("/:otherUserId", chatHandler.GetMessages)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	return dedup
}
