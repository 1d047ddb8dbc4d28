package fake

import (
	"context"
	"strings"
	"time"

	eventhive "github.com/eventhive/eventhive-go"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the backend-side record behind a profile.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID               uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	UserType         string     `bun:"user_type,notnull" json:"user_type,omitempty"`
	DisplayName      string     `bun:"display_name,notnull" json:"display_name,omitempty"`
	OrganizationName string     `bun:"organization_name" json:"organization_name,omitempty"`
	Email            string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone            string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash     string     `bun:"password_hash" json:"-"`
	EmailVerified    bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	Permissions      string     `bun:"permissions" json:"permissions,omitempty"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Profile converts the record into the client-facing shape.
func (a *Account) Profile() *eventhive.UserProfile {
	var perms []string
	if a.Permissions != "" {
		perms = strings.Split(a.Permissions, ",")
	}

	return &eventhive.UserProfile{
		ID:            a.ID.String(),
		DisplayName:   a.DisplayName,
		Email:         a.Email,
		Phone:         a.Phone,
		UserType:      eventhive.UserType(a.UserType),
		Permissions:   perms,
		EmailVerified: a.EmailVerified,
	}
}

// defaultPermissions is the permission set granted per account type.
func defaultPermissions(userType eventhive.UserType) string {
	switch userType {
	case eventhive.UserTypeUser:
		return "events.view,events.register"
	case eventhive.UserTypeOrganization:
		return "events.view,events.create,events.manage"
	case eventhive.UserTypeAdmin:
		return "events.view,users.manage,organizations.approve"
	default:
		return ""
	}
}

// Accounts is the account repository.
type Accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

func NewAccountsRepository(db *bun.DB) *Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &Accounts{
		Repository: repo,
		db:         db,
	}
}

// Create inserts the record.
func (a *Accounts) Create(ctx context.Context, record *Account) (*Account, error) {
	return a.Repository.CreateTx(ctx, a.db, record)
}

// GetByEmail finds an account by its email address.
func (a *Accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	record := &Account{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.ToLower(strings.TrimSpace(email))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}
	return record, nil
}

// MarkVerified flips the verification flag after an OTP exchange.
func (a *Accounts) MarkVerified(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("is_email_verified = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// UpdatePassword swaps the stored hash during a password reset.
func (a *Accounts) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
