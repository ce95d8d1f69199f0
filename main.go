package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"blazestride/internal/config"
	"blazestride/internal/database"
	"blazestride/internal/events"
	"blazestride/internal/handlers"
	"blazestride/internal/idempotency"
	"blazestride/internal/metrics"
	"blazestride/internal/middleware"
	"blazestride/internal/notify"
	"blazestride/internal/orders"
	"blazestride/internal/receipt"
	"blazestride/internal/reviews"
)

type services struct {
	orders  *orders.Service
	reviews *reviews.Service
	idem    *idempotency.Store
}

func main() {
	config.Load()
	cfg := config.AppEnv

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(cfg.DBName)
	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureIndexes(db); err != nil {
		log.Printf("index warning: %v", err)
	}

	var awsCfg *aws.Config
	if cfg.MailQueueURL != "" || cfg.MetricsNamespace != "" {
		loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatalf("failed to load AWS config: %v", err)
		}
		awsCfg = &loaded
	}

	var notifier orders.Notifier = notify.LogSender{}
	if cfg.MailQueueURL != "" {
		notifier = notify.NewSQSSender(sqs.NewFromConfig(*awsCfg), cfg.MailQueueURL, cfg.MailFrom)
		log.Println("order emails go to", cfg.MailQueueURL)
	}

	var (
		background sync.WaitGroup
		recorder   orders.Metrics = metrics.Nop{}
	)
	if cfg.MetricsNamespace != "" {
		cw := metrics.NewRecorder(cloudwatch.NewFromConfig(*awsCfg), cfg.MetricsNamespace)
		recorder = cw
		background.Add(1)
		go func() {
			defer background.Done()
			cw.Run(ctx, time.Minute)
		}()
	}

	deps := orders.Dependencies{
		Store:    database.NewOrderStore(db),
		Catalog:  database.NewProductStore(db),
		Users:    database.NewUserStore(db),
		Notifier: notifier,
		Receipts: receipt.NewRenderer(),
		Metrics:  recorder,
	}

	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, 1024)
		producer.Start()
		deps.Events = producer
		log.Println("order events go to topic", cfg.KafkaOrderTopic)
	}

	svc := services{
		orders: orders.NewService(deps, orders.Options{
			StoreTimeout:   cfg.StoreTimeout,
			NotifyTimeout:  cfg.NotifyTimeout,
			AttachReceipt:  cfg.ReceiptAttach,
			ValidateTotals: cfg.ValidateOrderTotals,
			MailFrom:       cfg.MailFrom,
		}),
		reviews: reviews.NewService(
			database.NewReviewStore(db),
			database.NewOrderStore(db),
			database.NewProductStore(db),
			database.NewUserStore(db),
			cfg.StoreTimeout,
		),
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		svc.idem = idempotency.NewStore(rdb)
		log.Println("idempotency keys stored in redis at", cfg.RedisAddr)
	}

	// flush drains buffered order events and metric counts on server
	// shutdown, on Lambda SIGTERM or when main returns.
	flush := drainOnce(
		func() {
			if producer != nil {
				producer.Close()
			}
		},
		cancel,
		background.Wait,
		func() { log.Println("order events and metrics flushed") },
	)
	defer flush()

	r := setupRouter(db, cfg, svc)

	if cfg.RunLambda {
		adapter := ginadapter.New(r)
		lambda.StartWithOptions(
			func(ctx context.Context, req awsevents.APIGatewayProxyRequest) (awsevents.APIGatewayProxyResponse, error) {
				return adapter.ProxyWithContext(ctx, req)
			},
			lambda.WithEnableSIGTERM(flush),
		)
		return
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Printf("HTTP listening at %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// drainOnce returns a func that runs steps in order the first time it is
// called and does nothing afterwards.
func drainOnce(steps ...func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, step := range steps {
				step()
			}
		})
	}
}

func setupRouter(db *mongo.Database, cfg config.Config, svc services) *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"Warning"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	tokens := handlers.TokenConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}
	userAuth := middleware.UserAuth(cfg.JWTSecret)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/auth/register", handlers.Register(db, tokens))
	r.POST("/auth/login", handlers.Login(db, tokens))
	r.POST("/auth/refresh", handlers.Refresh(db, tokens))
	r.POST("/auth/logout", handlers.Logout(db))
	r.GET("/auth/me", userAuth, handlers.GetMe(db))

	r.GET("/products", handlers.GetProducts(db))
	r.GET("/products/:id", handlers.GetProduct(db))
	r.GET("/categories", handlers.GetCategories())

	r.GET("/reviews/product/:productId", handlers.GetProductReviews(svc.reviews))

	authed := r.Group("/")
	authed.Use(userAuth)
	{
		authed.POST("/orders", handlers.CreateOrder(svc.orders, svc.idem))
		authed.GET("/orders", handlers.GetMyOrders(svc.orders))
		authed.GET("/orders/:id", handlers.GetOrder(svc.orders))

		authed.PUT("/user/profile", handlers.UpdateProfile(db))
		authed.DELETE("/user/account", handlers.DeleteAccount(db))

		authed.POST("/reviews", handlers.UpsertReview(svc.reviews))
		authed.GET("/reviews/user", handlers.GetMyReviews(svc.reviews))
		authed.GET("/reviews/order/:orderId/product/:productId", handlers.GetReviewByOrderAndProduct(svc.reviews))
		authed.DELETE("/reviews/:reviewId", handlers.DeleteReview(svc.reviews))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(cfg.JWTSecret))
	{
		admin.GET("/me", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		admin.GET("/orders", handlers.ListOrders(svc.orders))
		admin.PATCH("/orders/:id/status", handlers.UpdateOrderStatus(svc.orders))
		admin.DELETE("/orders/:id", handlers.DeleteOrder(svc.orders))

		admin.POST("/products", handlers.CreateProduct(db))
		admin.PUT("/products/:id", handlers.UpdateProduct(db))
		admin.DELETE("/products/:id", handlers.DeleteProduct(db))

		admin.GET("/users", handlers.ListUsers(db))
		admin.PUT("/users/:id", handlers.UpdateUser(db))
	}

	return r
}
