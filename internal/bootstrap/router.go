package bootstrap

import (
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/siteforge-labs/siteforge-backend/internal/api/http"
	"github.com/siteforge-labs/siteforge-backend/internal/api/http/middleware"
	"github.com/siteforge-labs/siteforge-backend/internal/auth"
	authmw "github.com/siteforge-labs/siteforge-backend/internal/auth/middleware"
	"github.com/siteforge-labs/siteforge-backend/internal/projects"
	"github.com/siteforge-labs/siteforge-backend/internal/sitegen"
	"github.com/siteforge-labs/siteforge-backend/internal/users"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	CORSOrigins []string

	DB         *pgxpool.Pool
	Cache      *redis.Client
	AuthClient *fbauth.Client
	Service    *sitegen.Service
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(cors.New(corsConfig(dep.CORSOrigins)))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Cache)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")

	userRepo := users.NewRepo(dep.DB)
	api.Use(authmw.FirebaseAuthMiddleware(dep.AuthClient))
	api.Use(auth.WithUser(userRepo))

	users.Register(api.Group("/users"), userRepo)

	projectsGroup := api.Group("/projects")
	projects.Register(projectsGroup, projects.NewRepo(dep.DB))
	sitegen.Register(projectsGroup, dep.Service)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "X-Request-Id")

	// a wildcard origin cannot carry credentials
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}

	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
