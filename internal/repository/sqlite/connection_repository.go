package sqlite

import (
	"context"

	"github.com/google/uuid"
	errwrap "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/helper"
)

// ConnectionRepository reads monitored-connection and membership
// reference data. The identity system owns the writes; the pipeline only
// needs Create for provisioning and tests.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *entity.DatabaseConnection) error
	FindByID(ctx context.Context, id int64) (*entity.DatabaseConnection, error)
	FindEnabled(ctx context.Context) ([]*entity.DatabaseConnection, error)
	FindAll(ctx context.Context) ([]*entity.DatabaseConnection, error)

	TeamIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	OrgIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

type connectionRepo struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepo{db: db}
}

func (r *connectionRepo) Create(ctx context.Context, conn *entity.DatabaseConnection) error {
	funcName := "ConnectionRepository.Create"
	if err := helper.CheckDeadline(ctx); err != nil {
		return errwrap.Wrap(err, funcName)
	}

	if conn.AgentToken == "" {
		conn.AgentToken = uuid.NewString()
	}

	if err := r.db.WithContext(ctx).Create(conn).Error; err != nil {
		return errwrap.Wrap(err, funcName)
	}
	return nil
}

func (r *connectionRepo) FindByID(ctx context.Context, id int64) (*entity.DatabaseConnection, error) {
	funcName := "ConnectionRepository.FindByID"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var conn entity.DatabaseConnection
	err := r.db.WithContext(ctx).First(&conn, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errwrap.Wrap(err, funcName)
	}
	return &conn, nil
}

func (r *connectionRepo) FindEnabled(ctx context.Context) ([]*entity.DatabaseConnection, error) {
	funcName := "ConnectionRepository.FindEnabled"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var conns []*entity.DatabaseConnection
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id asc").
		Find(&conns).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return conns, nil
}

func (r *connectionRepo) FindAll(ctx context.Context) ([]*entity.DatabaseConnection, error) {
	funcName := "ConnectionRepository.FindAll"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var conns []*entity.DatabaseConnection
	err := r.db.WithContext(ctx).Order("id asc").Find(&conns).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return conns, nil
}

func (r *connectionRepo) TeamIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	funcName := "ConnectionRepository.TeamIDsForUser"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&entity.TeamMember{}).
		Where("user_id = ?", userID).
		Pluck("team_id", &ids).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return ids, nil
}

func (r *connectionRepo) OrgIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	funcName := "ConnectionRepository.OrgIDsForUser"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&entity.OrgMember{}).
		Where("user_id = ?", userID).
		Pluck("organization_id", &ids).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return ids, nil
}
