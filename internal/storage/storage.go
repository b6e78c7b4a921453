package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"pipi/backend/internal/models"
	"strings"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("record changed concurrently")
	ErrEmailTaken = errors.New("email already registered")
)

// Storage is the record store for activities and users plus the change-event bus.
//
// CreateActivity and ReplaceActivity write the full record. MergePatchActivity
// only touches the top-level columns present in the patch; a patched
// authentication map replaces the stored one whole. SetAuthentication changes a
// single key inside the stored map.
type Storage interface {
	CreateActivity(ctx context.Context, a *models.Activity) error
	ReplaceActivity(ctx context.Context, a *models.Activity) error
	GetActivity(ctx context.Context, id string) (*models.Activity, error)
	ListActivities(ctx context.Context) ([]models.Activity, error)
	MergePatchActivity(ctx context.Context, id string, patch models.ActivityPatch) error
	SetAuthentication(ctx context.Context, id, userID string, done bool) error
	// AppendParticipantIfCount adds userID only if the activity still has
	// expected participants, is open and does not list the user. It returns
	// ErrConflict otherwise.
	AppendParticipantIfCount(ctx context.Context, id, userID string, expected int) error
	// RemoveParticipant drops userID from participant_id and its key from
	// authentication in one write, leaving other keys as stored. It returns
	// ErrConflict when the user is not listed.
	RemoveParticipant(ctx context.Context, id, userID string) error
	DeleteActivity(ctx context.Context, id string) error

	PublishActivityEvent(ctx context.Context, ev models.ActivityEvent) error
	// SubscribeActivityEvents delivers events until ctx is cancelled, then closes
	// the channel.
	SubscribeActivityEvents(ctx context.Context) (<-chan models.ActivityEvent, error)

	SaveUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

// Service is the PostgreSQL + Redis implementation.
type Service struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *zap.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		DB:     db,
		Redis:  rdb,
		Logger: logger,
	}
}

// Migrate creates or updates the tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Activity{})
}

func (s *Service) CreateActivity(ctx context.Context, a *models.Activity) error {
	a.Normalize()
	return translate(s.DB.WithContext(ctx).Create(a).Error)
}

func (s *Service) ReplaceActivity(ctx context.Context, a *models.Activity) error {
	a.Normalize()
	return translate(s.DB.WithContext(ctx).Save(a).Error)
}

func (s *Service) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	var a models.Activity
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *Service) ListActivities(ctx context.Context) ([]models.Activity, error) {
	var list []models.Activity
	if err := s.DB.WithContext(ctx).Order("start_date_time asc").Find(&list).Error; err != nil {
		s.Logger.Error("Failed to list activities", zap.Error(err))
		return nil, err
	}
	return list, nil
}

func (s *Service) MergePatchActivity(ctx context.Context, id string, patch models.ActivityPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	// the json serializer is not applied to map updates
	if auth, ok := cols["authentication"]; ok {
		b, err := json.Marshal(auth)
		if err != nil {
			return fmt.Errorf("encode authentication: %w", err)
		}
		cols["authentication"] = gorm.Expr("?::jsonb", string(b))
	}

	res := s.DB.WithContext(ctx).Model(&models.Activity{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) SetAuthentication(ctx context.Context, id, userID string, done bool) error {
	res := s.DB.WithContext(ctx).Model(&models.Activity{}).
		Where("id = ?", id).
		Update("authentication", gorm.Expr(
			"jsonb_set(COALESCE(authentication, '{}'::jsonb), ?::text[], to_jsonb(?::boolean), true)",
			pq.Array([]string{userID}), done,
		))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) AppendParticipantIfCount(ctx context.Context, id, userID string, expected int) error {
	res := s.DB.WithContext(ctx).Model(&models.Activity{}).
		Where("id = ?", id).
		Where("host_id <> ?", userID).
		Where("COALESCE(cardinality(participant_id), 0) = ?", expected).
		Where("COALESCE(cardinality(participant_id), 0) + 1 < max_people_number").
		Where("NOT (? = ANY(COALESCE(participant_id, '{}'::text[])))", userID).
		Updates(map[string]interface{}{
			"participant_id": gorm.Expr("array_append(COALESCE(participant_id, '{}'::text[]), ?)", userID),
			"authentication": gorm.Expr(
				"jsonb_set(COALESCE(authentication, '{}'::jsonb), ?::text[], 'false'::jsonb, true)",
				pq.Array([]string{userID}),
			),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetActivity(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *Service) RemoveParticipant(ctx context.Context, id, userID string) error {
	res := s.DB.WithContext(ctx).Model(&models.Activity{}).
		Where("id = ?", id).
		Where("? = ANY(COALESCE(participant_id, '{}'::text[]))", userID).
		Updates(map[string]interface{}{
			"participant_id": gorm.Expr("array_remove(participant_id, ?)", userID),
			"authentication": gorm.Expr("COALESCE(authentication, '{}'::jsonb) - ?::text", userID),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetActivity(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *Service) DeleteActivity(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Activity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveUser inserts a new user. A duplicate email yields ErrEmailTaken.
func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	return translateUser(s.DB.WithContext(ctx).Create(user).Error)
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	// emails are stored lowercase
	if err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Service) UpdateUser(ctx context.Context, user *models.User) error {
	return translateUser(s.DB.WithContext(ctx).Save(user).Error)
}

// translate maps gorm's not-found error onto ErrNotFound.
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// translateUser also maps a unique violation to ErrEmailTaken, email being the
// only unique column besides the key. The DB must be opened with TranslateError.
func translateUser(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	return translate(err)
}
