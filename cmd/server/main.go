package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/blog"
	"github.com/ButyrinIA/blog/internal/cache"
	"github.com/ButyrinIA/blog/internal/config"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/server"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/ButyrinIA/blog/internal/storage/memory"
	"github.com/ButyrinIA/blog/internal/storage/mongodb"
	"github.com/ButyrinIA/blog/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	storageType := flag.String("storage", "memory", "тип хранилища: memory, postgres или mongo")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("Неизвестный уровень логирования %q, используется info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, *storageType, cfg, log)
	if err != nil {
		log.Fatalf("Не удалось инициализировать хранилище %s: %v", *storageType, err)
	}
	defer store.Close()

	svc := blog.New(store, blog.WithPageSize(cfg.Feed.PageSize), blog.WithLogger(log))
	for _, g := range cfg.Groups {
		if _, err := svc.EnsureGroup(ctx, forms.GroupInput{Title: g.Title, Slug: g.Slug, Description: g.Description}); err != nil {
			log.Fatalf("Не удалось создать группу %s: %v", g.Slug, err)
		}
	}

	homeCache := cache.New(cfg.Cache.TTL)
	go homeCache.Run(ctx, cfg.Cache.SweepInterval)
	go clearOnHangup(ctx, homeCache, log)

	srv := server.New(cfg, svc, homeCache, auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Не удалось запустить сервер: %v", err)
		}
	case <-ctx.Done():
		log.Info("Остановка сервера")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Ошибка при остановке сервера: %v", err)
		}
	}
}

func openStorage(ctx context.Context, kind string, cfg *config.Config, log *logrus.Logger) (storage.Storage, error) {
	switch kind {
	case "postgres":
		log.Info("Инициализация хранилища PostgreSQL")
		return postgres.New(ctx, cfg.Postgres.DSN)
	case "mongo":
		log.Info("Инициализация хранилища MongoDB")
		return mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case "memory":
		log.Info("Инициализация хранилища Memory")
		return memory.New(), nil
	default:
		return nil, errors.New("неизвестный тип хранилища")
	}
}

// clearOnHangup сбрасывает кэш главной по SIGHUP.
func clearOnHangup(ctx context.Context, c *cache.Cache, log logrus.FieldLogger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			c.Clear()
			log.Info("Кэш главной страницы очищен")
		}
	}
}
