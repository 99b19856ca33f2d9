package postgres

import (
	errors "github.com/mediconnect/appointment-management/internal"
	directorydm "github.com/mediconnect/appointment-management/internal/core/datamodel/directory"
	"github.com/mediconnect/appointment-management/internal/directory"
	"gorm.io/gorm"
)

type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) directory.RepositoryAPI {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) GetByUserID(userID int64) (*directorydm.DoctorProfile, error) {
	var profile directorydm.DoctorProfile
	err := r.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrDoctorNotFound
		}
		return nil, err
	}
	return &profile, nil
}
