// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"catalog-smart-go/internal/config"
	"catalog-smart-go/internal/handler"
	"catalog-smart-go/internal/middleware"
	"catalog-smart-go/internal/pipeline"
	"catalog-smart-go/internal/repository"
	"catalog-smart-go/internal/service"
	"catalog-smart-go/pkg/archive"
	"catalog-smart-go/pkg/database"
	"catalog-smart-go/pkg/embedding"
	"catalog-smart-go/pkg/es"
	"catalog-smart-go/pkg/kafka"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/offload"
	"catalog-smart-go/pkg/pdf"
	"catalog-smart-go/pkg/s3proxy"
	"catalog-smart-go/pkg/storage"
	"catalog-smart-go/pkg/token"
	"catalog-smart-go/pkg/vision"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MinIO 与 Elasticsearch
	db := database.InitMySQL(cfg.Database.MySQL.DSN)
	rdb := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	store, err := storage.NewStore(cfg.MinIO)
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	esClient, err := es.NewClient(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("Elasticsearch 初始化失败: %v", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化有界工作池，向量化与 PDF 转换等重计算都通过它执行
	pool, err := offload.NewPool(cfg.Extraction.PoolSize)
	if err != nil {
		log.Fatalf("工作池初始化失败: %v", err)
	}
	defer pool.Release()

	// 5. 初始化外部服务客户端
	jwtManager := token.NewJWTManager(cfg.JWT.Secret)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	visionClient := vision.NewClient(cfg.Vision)
	s3proxyClient := s3proxy.NewClient(cfg.S3Proxy)

	// 6. 初始化 Repository 与 Service (依赖注入)
	productRepo := repository.NewProductRepository(db)
	extractor := archive.NewExtractor(pdf.NewRasterizer(), pool)
	extractService := service.NewExtractService(visionClient, cfg.Extraction.MaxConcurrent)
	uploadService := service.NewUploadService(s3proxyClient)
	ingestService := service.NewIngestService(extractor, extractService, uploadService, store, rdb)
	recommendService := service.NewRecommendService(productRepo, embeddingClient, esClient, pool)

	// 7. 启动后台 Kafka 消费者，驱动向量索引维护
	processor := pipeline.NewCatalogChangeProcessor(recommendService)
	go kafka.StartConsumer(cfg.Kafka, rdb, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/token", handler.NewAuthHandler(jwtManager).IssueToken)
		}

		// Ingest 路由组，需要租户认证
		ingest := apiV1.Group("/ingest")
		ingest.Use(middleware.TenantAuthMiddleware(jwtManager))
		{
			ingestHandler := handler.NewIngestHandler(ingestService)
			ingest.POST("/fetch/productinfo", ingestHandler.FetchProductInfo)
			ingest.POST("/process/catalog", ingestHandler.ProcessCatalog)
		}

		// Product 路由组：向量索引维护与推荐
		products := apiV1.Group("/products")
		{
			productHandler := handler.NewProductHandler(recommendService, producer)
			products.POST("/bulk_insert", productHandler.BulkInsert)
			products.PUT("/update_product", productHandler.UpdateProduct)
			products.DELETE("/delete_product/:id", productHandler.DeleteProduct)
			products.DELETE("/delete_products", productHandler.DeleteProducts)
			products.DELETE("/delete_all_products", productHandler.DeleteAllProducts)
			products.GET("/recommendations/:id", productHandler.Recommendations)
			products.POST("/recommendations/query", productHandler.RecommendationsByQuery)
			products.POST("/reindex", productHandler.Reindex)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费循环会随进程退出自然结束，不需要手动关闭。
	log.Info("服务已优雅关闭")
}
