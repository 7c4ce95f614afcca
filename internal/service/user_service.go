package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/events"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN TUTOR TUTEE"`
	Active   bool            `json:"active"`
	Password string          `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating users. Roles change through ChangeRole.
type UpdateUserRequest struct {
	FullName string `json:"full_name" validate:"required,max=120"`
	Active   *bool  `json:"active"`
}

// ChangeRoleRequest moves a user to another role.
type ChangeRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN TUTOR TUTEE"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, bus eventPublisher, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &UserService{repo: repo, events: bus, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       req.Active,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit(ctx, models.AuditActionUserCreate, actorID, user.ID, nil, map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role}, meta)
	s.events.Publish(ctx, events.ContentChanged{Table: "users", ID: user.ID, Op: "insert"})
	return user, nil
}

// Update modifies the name and active flag of a user.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	old := map[string]interface{}{"full_name": user.FullName, "active": user.Active}
	wasActive := user.Active

	user.FullName = strings.TrimSpace(req.FullName)
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit(ctx, models.AuditActionUserUpdate, actorID, user.ID, old, map[string]interface{}{"full_name": user.FullName, "active": user.Active}, meta)
	s.events.Publish(ctx, events.ContentChanged{Table: "users", ID: user.ID, Op: "update"})
	if wasActive && !user.Active {
		s.events.Publish(ctx, events.UserDeactivated{UserID: user.ID})
	}
	return user, nil
}

// ChangeRole sets a new role. Subscribers of RoleChanged revoke the user's refresh tokens.
func (s *UserService) ChangeRole(ctx context.Context, id string, req ChangeRoleRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if id == actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "administrators cannot change their own role")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == req.Role {
		return user, nil
	}
	oldRole := user.Role
	if err := s.repo.UpdateRole(ctx, id, req.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change role")
	}
	user.Role = req.Role

	s.audit(ctx, models.AuditActionRoleChange, actorID, user.ID, map[string]interface{}{"role": oldRole}, map[string]interface{}{"role": user.Role}, meta)
	s.events.Publish(ctx, events.RoleChanged{UserID: user.ID, OldRole: string(oldRole), NewRole: string(user.Role)})
	s.logger.Info("user role changed", zap.String("user_id", user.ID), zap.String("from", string(oldRole)), zap.String("to", string(user.Role)))
	return user, nil
}

// Delete performs a soft delete (inactive) on a user.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.LoginRequest) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "administrators cannot deactivate themselves")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.audit(ctx, models.AuditActionUserDelete, actorID, user.ID, map[string]interface{}{"active": user.Active}, map[string]interface{}{"active": false}, meta)
	s.events.Publish(ctx, events.ContentChanged{Table: "users", ID: user.ID, Op: "delete"})
	s.events.Publish(ctx, events.UserDeactivated{UserID: user.ID})
	return nil
}

// SeedAdmin creates a super administrator unless the email is already registered.
// It reports whether a user was created.
func (s *UserService) SeedAdmin(ctx context.Context, email, fullName, password string) (bool, error) {
	_, err := s.Create(ctx, CreateUserRequest{
		Email:    email,
		FullName: fullName,
		Role:     models.RoleSuperAdmin,
		Active:   true,
		Password: password,
	}, "", models.LoginRequest{})
	if err == nil {
		return true, nil
	}
	if appErrors.Is(err, appErrors.ErrConflict) {
		return false, nil
	}
	return false, err
}

func (s *UserService) audit(ctx context.Context, action, actorID, userID string, oldValues, newValues map[string]interface{}, meta models.LoginRequest) {
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "users",
		ResourceID: &userID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}
