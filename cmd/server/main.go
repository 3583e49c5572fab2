package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/handlers"
	appmiddleware "github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/middleware"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/notify"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/repository"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/services"
	"github.com/Bhasyam-Meenamrutha/multi-vault-flow/internal/storage"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 30 * time.Second
	shutdownTimeout     = 10 * time.Second
)

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	closeFns       []func() // закрытие БД, AMQP и т.п. в обратном порядке
	sweeper        *services.Sweeper
	vaultHandler   *handlers.VaultHandler
	requestHandler *handlers.RequestHandler
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	if err := run(); err != nil {
		log.Printf("Ошибка выполнения сервера: %v", err)
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run() error {
	log.Println("Запуск сервера MultiVault...")

	cfg, err := parseFlags()
	if err != nil {
		return fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	deps, err := setupDependencies(cfg)
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	defer func() {
		for i := len(deps.closeFns) - 1; i >= 0; i-- {
			deps.closeFns[i]()
		}
	}()

	// Фоновый процесс истечения заявок
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	deps.sweeper.Start(sweepCtx)
	defer func() {
		stopSweep()
		deps.sweeper.Stop()
	}()

	r := setupRouter(deps.vaultHandler, deps.requestHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	// Запускаем сервер в отдельной горутине, чтобы дождаться сигнала остановки
	errCh := make(chan error, 1)
	go func() {
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			log.Printf("Запуск HTTPS-сервера на порту %s...", cfg.Port)
			errCh <- server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
			return
		}
		log.Printf("Запуск HTTP-сервера на порту %s (TLS не настроен)...", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
	case sig := <-stop:
		log.Printf("Получен сигнал %s, останавливаем сервер...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err = server.Shutdown(ctx); err != nil {
			return fmt.Errorf("ошибка остановки сервера: %w", err)
		}
	}
	log.Println("Сервер остановлен.")
	return nil
}

// setupDependencies инициализирует и возвращает все зависимости сервера.
func setupDependencies(cfg *config) (*dependencies, error) {
	deps := &dependencies{}

	// 1. Хранилище данных: PostgreSQL при заданном DSN, иначе память.
	var store repository.Store
	if cfg.DatabaseDSN != "" {
		db, err := repository.NewPostgresDB(cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
		}
		deps.closeFns = append(deps.closeFns, func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Printf("Ошибка закрытия соединения с БД: %v", closeErr)
			}
		})
		store = repository.NewPostgresStore(db)
	} else {
		log.Println("DSN базы данных не задан, используется хранилище в памяти.")
		store = repository.NewMemoryStore()
	}

	// 2. Уведомления: внутрипроцессная шина и, при настройке, AMQP.
	bus := notify.NewBus()
	notifier := notify.Fanout{bus}
	if cfg.AMQPURL != "" {
		pub, closeFn, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации издателя AMQP: %w", err)
		}
		deps.closeFns = append(deps.closeFns, closeFn)
		notifier = append(notifier, pub)
		log.Println("Издатель событий AMQP подключен.")
	}

	// 3. Архивация журнала: только при настроенном MinIO.
	var archiveService services.ArchiveService
	if cfg.MinioEndpoint != "" {
		minioClient, err := storage.NewMinioClient(storage.MinioConfig{
			Endpoint:        cfg.MinioEndpoint,
			AccessKeyID:     cfg.MinioUser,
			SecretAccessKey: cfg.MinioPassword,
			UseSSL:          false, // Для локальной разработки
			BucketName:      cfg.MinioBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
		}
		archiveService = services.NewArchiveService(store, minioClient)
	} else {
		log.Println("MinIO не настроен, архивация журнала отключена.")
	}

	// 4. Сервисы
	vaultService := services.NewVaultService(store, notifier)
	requestService := services.NewRequestService(store, notifier, cfg.RequestTTL)
	deps.sweeper = services.NewSweeper(store, notifier, cfg.SweepInterval)

	// 5. Обработчики
	deps.vaultHandler = handlers.NewVaultHandler(vaultService, archiveService)
	deps.requestHandler = handlers.NewRequestHandler(requestService)

	return deps, nil
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(vaultHandler *handlers.VaultHandler, requestHandler *handlers.RequestHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	r.Route("/api", func(r chi.Router) {
		// Чтение доступно без идентификации участника
		r.Get("/vaults", vaultHandler.List)
		r.Get("/vaults/{vaultID}", vaultHandler.Get)
		r.Get("/vaults/{vaultID}/requests", requestHandler.List)
		r.Get("/requests/{requestID}", requestHandler.Get)
		r.Get("/ledger", vaultHandler.ListLedger)

		// Команды требуют идентификатор участника из bearer-токена
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Authenticator)

			r.Post("/vaults", vaultHandler.Create)
			r.Post("/vaults/{vaultID}/deposit", vaultHandler.Deposit)
			r.Post("/vaults/{vaultID}/requests", requestHandler.Create)
			r.Post("/vaults/{vaultID}/ledger/archive", vaultHandler.ArchiveLedger)
			r.Post("/requests/{requestID}/votes", requestHandler.Vote)
		})
	})
	return r
}
