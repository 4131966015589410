package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"
	"github.com/SAOSTAR1501/sso-backend/internal/models"
	"github.com/SAOSTAR1501/sso-backend/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db  *gorm.DB
	cfg *config.Config
}

func New(driver, dsn string, cfg *config.Config) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.ClientApp{},
		&models.AuthorizationCode{},
		&models.Otp{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	s := &Store{db: db, cfg: cfg}

	if err := s.seedData(); err != nil {
		log.Printf("Warning: failed to seed data: %v", err)
	}

	return s, nil
}

// notFound maps gorm's sentinel onto the store's, so callers never import gorm.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func generateRandomPassword(length int) (string, error) {
	bytes, err := util.CryptoRandomBytes(length)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

// seedData creates the first admin user and a default trusted client on an
// empty database.
func (s *Store) seedData() error {
	var userCount int64
	s.db.Model(&models.User{}).Count(&userCount)
	adminID := uuid.New().String()
	if userCount == 0 {
		password := ""
		if s.cfg != nil {
			password = s.cfg.DefaultAdminPassword
		}
		generated := password == ""
		if generated {
			var err error
			password, err = generateRandomPassword(16)
			if err != nil {
				return err
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		email := "admin@localhost"
		if s.cfg != nil && s.cfg.DefaultAdminEmail != "" {
			email = s.cfg.DefaultAdminEmail
		}
		admin := &models.User{
			ID:           adminID,
			Email:        email,
			FullName:     "Administrator",
			PasswordHash: string(hash),
			Role:         "admin",
			AuthSource:   models.AuthSourceLocal,
			IsActive:     true,
		}
		if err := s.db.Create(admin).Error; err != nil {
			return err
		}
		if generated {
			log.Printf("Created default admin user: %s / %s", email, password)
		} else {
			log.Printf("Created default admin user: %s", email)
		}
	}

	var clientCount int64
	s.db.Model(&models.ClientApp{}).Count(&clientCount)
	if clientCount == 0 {
		clientID := models.GenerateClientID()
		plainSecret, secretHash, err := models.GenerateClientSecret()
		if err != nil {
			return err
		}
		frontend := "http://localhost:3000"
		if s.cfg != nil && s.cfg.FrontendURL != "" {
			frontend = s.cfg.FrontendURL
		}
		client := &models.ClientApp{
			ID:             uuid.New().String(),
			ClientID:       clientID,
			ClientSecret:   secretHash,
			Name:           "SSO Portal",
			Description:    "Default first-party portal client",
			RedirectURIs:   models.StringArray{frontend + "/"},
			AllowedScopes:  models.DefaultScopes,
			AllowedOrigins: models.StringArray{frontend},
			Trusted:        true,
			IsActive:       true,
			CreatedBy:      adminID,
		}
		if err := s.db.Create(client).Error; err != nil {
			return err
		}
		log.Printf("Created default client app: %s (SSO Portal)", clientID)
		log.Printf("Client secret (save this): %s", plainSecret)
	}

	return nil
}

// User operations

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByGoogleID(googleID string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("google_id = ?", googleID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) CreateUser(user *models.User) error {
	var existing models.User
	err := s.db.Where("email = ?", user.Email).First(&existing).Error
	if err == nil {
		return ErrEmailConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}
	return s.db.Create(user).Error
}

func (s *Store) UpdateUser(user *models.User) error {
	return s.db.Save(user).Error
}

// Client app operations

func (s *Store) GetClientApp(clientID string) (*models.ClientApp, error) {
	var client models.ClientApp
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

func (s *Store) ListClientApps(params PaginationParams) ([]models.ClientApp, PaginationResult, error) {
	query := s.db.Model(&models.ClientApp{})
	if params.Search != "" {
		pattern := "%" + params.Search + "%"
		query = query.Where("name LIKE ? OR client_id LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	var clients []models.ClientApp
	offset := (params.Page - 1) * params.PageSize
	if err := query.Order("created_at DESC").
		Offset(offset).
		Limit(params.PageSize).
		Find(&clients).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	return clients, CalculatePagination(total, params.Page, params.PageSize), nil
}

// ListActiveClientApps returns every active client. Used to build the CORS
// origin allow-list; the result is cached by the caller.
func (s *Store) ListActiveClientApps() ([]models.ClientApp, error) {
	var clients []models.ClientApp
	if err := s.db.Where("is_active = ?", true).Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) CreateClientApp(client *models.ClientApp) error {
	return s.db.Create(client).Error
}

func (s *Store) UpdateClientApp(client *models.ClientApp) error {
	return s.db.Save(client).Error
}

// DeactivateClientApp soft-deletes a client registration. The row is kept
// so authorization codes and tokens referencing the client within their
// TTL still resolve; only is_active flips.
func (s *Store) DeactivateClientApp(clientID string) error {
	return s.db.Model(&models.ClientApp{}).
		Where("client_id = ?", clientID).
		Update("is_active", false).Error
}

// Authorization code operations

func (s *Store) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

// GetAuthorizationCodeByHash looks up a code by its SHA-256 hash. The
// prefix narrows the scan before the full hash comparison.
func (s *Store) GetAuthorizationCodeByHash(prefix, hash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	err := s.db.Where("code_prefix = ? AND code_hash = ?", prefix, hash).First(&code).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &code, nil
}

// ConsumeAuthorizationCode marks a code as used. The conditional UPDATE is
// the linearization point: exactly one concurrent exchange observes a row
// change, every other one gets ErrAuthCodeAlreadyUsed.
func (s *Store) ConsumeAuthorizationCode(id string) error {
	res := s.db.Model(&models.AuthorizationCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAuthCodeAlreadyUsed
	}
	return nil
}

func (s *Store) DeleteExpiredAuthorizationCodes() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&models.AuthorizationCode{})
	return res.RowsAffected, res.Error
}

// OTP operations

func (s *Store) CreateOtp(otp *models.Otp) error {
	return s.db.Create(otp).Error
}

// GetLatestOtp returns the most recent unconsumed code for an email and
// purpose, regardless of expiry. Callers decide whether it is still usable.
func (s *Store) GetLatestOtp(email, purpose string) (*models.Otp, error) {
	var otp models.Otp
	err := s.db.Where("email = ? AND purpose = ? AND consumed_at IS NULL", email, purpose).
		Order("created_at DESC").
		First(&otp).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &otp, nil
}

func (s *Store) UpdateOtp(otp *models.Otp) error {
	return s.db.Save(otp).Error
}

// InvalidateOtps consumes every outstanding code for an email and purpose.
func (s *Store) InvalidateOtps(email, purpose string) error {
	return s.db.Model(&models.Otp{}).
		Where("email = ? AND purpose = ? AND consumed_at IS NULL", email, purpose).
		Update("consumed_at", time.Now()).Error
}

func (s *Store) DeleteExpiredOtps() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&models.Otp{})
	return res.RowsAffected, res.Error
}

// Audit log operations

func (s *Store) CreateAuditLog(entry *models.AuditLog) error {
	return s.db.Create(entry).Error
}

func (s *Store) CreateAuditLogBatch(entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Create(entries).Error
}

func (s *Store) GetAuditLogsPaginated(
	params PaginationParams,
	filters AuditLogFilters,
) ([]models.AuditLog, PaginationResult, error) {
	query := filters.apply(s.db.Model(&models.AuditLog{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	var logs []models.AuditLog
	offset := (params.Page - 1) * params.PageSize
	if err := query.Order("event_time DESC").
		Offset(offset).
		Limit(params.PageSize).
		Find(&logs).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	return logs, CalculatePagination(total, params.Page, params.PageSize), nil
}

func (s *Store) DeleteOldAuditLogs(cutoff time.Time) (int64, error) {
	res := s.db.Where("event_time < ?", cutoff).Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
