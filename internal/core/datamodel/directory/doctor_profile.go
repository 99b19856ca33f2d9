package directory

// DoctorProfile is the read model for the doctor directory collaborator. The
// booking flow only needs existence and a contact phone; the rest of the
// profile is managed elsewhere.
type DoctorProfile struct {
	UserID  int64   `json:"user_id" gorm:"column:user_id;primaryKey"`
	Phone   *string `json:"phone,omitempty" gorm:"column:phone"`
	Country string  `json:"country" gorm:"column:country"`
	Summary string  `json:"summary" gorm:"column:summary"`
	Rate    int64   `json:"rate" gorm:"column:rate"`
}

func (DoctorProfile) TableName() string {
	return "doctor_profiles"
}
