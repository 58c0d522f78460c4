package db

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type database struct {
	db *gorm.DB
}

// New creates a new database connection
func New(ctx context.Context, dialect string, dsn string, config *gorm.Config) (Database, error) {
	if config == nil {
		config = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	}

	var db *gorm.DB
	var err error

	if dialect == "sqlite" {
		db, err = gorm.Open(sqlite.Open(dsn), config)
		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}
	} else if dialect == "mysql" {
		db, err = gorm.Open(mysql.Open(dsn), config)
	} else {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	if err != nil {
		return nil, err
	}

	db = db.WithContext(ctx)

	if err := db.AutoMigrate(
		&User{},
		&Subdomain{},
		&Deployment{},
	); err != nil {
		return nil, err
	}

	return &database{db: db}, nil
}

func (d *database) CreateUser(user *User) error {
	sql := d.db.Create(user)
	return sql.Error
}

func (d *database) GetUserByEmail(email string) (User, error) {
	user := User{}
	sql := d.db.Where("email = ?", email).Limit(1).Find(&user)
	return user, sql.Error
}

func (d *database) GetUserByAPIKey(apiKey string) (User, error) {
	user := User{}
	sql := d.db.Where("api_key = ? and is_active = ?", apiKey, true).Limit(1).Find(&user)
	return user, sql.Error
}

func (d *database) GetUserByUserID(userID string) (User, error) {
	user := User{}
	sql := d.db.Where("user_id = ?", userID).Limit(1).Find(&user)
	return user, sql.Error
}

func (d *database) UpdateUserAPIKey(userID, apiKey string) error {
	now := time.Now()
	sql := d.db.Model(&User{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"api_key":        apiKey,
		"last_active_at": now,
	})
	if sql.Error != nil {
		return sql.Error
	}
	if sql.RowsAffected == 0 {
		return fmt.Errorf("no user with id %s", userID)
	}
	return nil
}

func (d *database) TouchUser(userID string) error {
	sql := d.db.Model(&User{}).Where("user_id = ?", userID).Update("last_active_at", time.Now())
	return sql.Error
}

func (d *database) CountUserResources(userID string) (UserResourceCounts, error) {
	var counts UserResourceCounts

	sql := d.db.Model(&Deployment{}).Where("user_id = ?", userID).Count(&counts.Deployments)
	if sql.Error != nil {
		return counts, sql.Error
	}
	sql = d.db.Model(&Deployment{}).Where("user_id = ? and status = ?", userID, "deployed").
		Count(&counts.ActiveDeployments)
	if sql.Error != nil {
		return counts, sql.Error
	}
	sql = d.db.Model(&Subdomain{}).Where("user_id = ?", userID).Count(&counts.Subdomains)
	return counts, sql.Error
}

func (d *database) CreateSubdomain(sub *Subdomain) error {
	sql := d.db.Create(sub)
	return sql.Error
}

func (d *database) ListSubdomains(userID, deploymentID string) ([]Subdomain, error) {
	query := d.db.Model(&Subdomain{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if deploymentID != "" {
		query = query.Where("deployment_id = ?", deploymentID)
	}

	var subs []Subdomain
	sql := query.Find(&subs)
	return subs, sql.Error
}

func (d *database) FindSubdomain(deploymentID, name string) (Subdomain, error) {
	query := d.db.Model(&Subdomain{})
	if deploymentID != "" {
		query = query.Where("deployment_id = ?", deploymentID)
	}
	if name != "" {
		query = query.Where("subdomain = ?", name)
	}

	sub := Subdomain{}
	sql := query.Limit(1).Find(&sub)
	return sub, sql.Error
}

func (d *database) MarkSubdomainRetargeted(id uint) error {
	sql := d.db.Model(&Subdomain{Model: gorm.Model{ID: id}}).Update("status", "active")
	return sql.Error
}

func (d *database) CreateDeployment(dep *Deployment) error {
	sql := d.db.Create(dep)
	return sql.Error
}

func (d *database) GetDeployment(deploymentID string) (Deployment, error) {
	dep := Deployment{}
	sql := d.db.Where("deployment_id = ?", deploymentID).Limit(1).Find(&dep)
	return dep, sql.Error
}

func (d *database) ListDeployments(filter ListDeploymentsFilter) ([]Deployment, int64, error) {
	query := d.db.Model(&Deployment{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Framework != "" {
		query = query.Where("framework = ?", filter.Framework)
	}

	var total int64
	if sql := query.Count(&total); sql.Error != nil {
		return nil, 0, sql.Error
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}

	var deps []Deployment
	sql := query.Order("created_at desc").Offset((page - 1) * limit).Limit(limit).Find(&deps)
	return deps, total, sql.Error
}

func (d *database) UpdateDeploymentStatus(deploymentID, status, healthStatus string) error {
	now := time.Now()
	sql := d.db.Model(&Deployment{}).Where("deployment_id = ?", deploymentID).Updates(map[string]interface{}{
		"status":            status,
		"health_status":     healthStatus,
		"last_health_check": now,
	})
	return sql.Error
}

func (d *database) HealthCheck(ctx context.Context) bool {
	sqlDB, err := d.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}
