package model

// Defaults applied to every registered user regardless of input.
const (
	DefaultProfileImage = "assets/9.jpg"
	DefaultCourse       = "Computer Science"
)

// User is a registered student account.
// Password is stored in plain text and compared verbatim at login.
type User struct {
	ID           int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string  `gorm:"index;size:64;not null" json:"username"`
	StudentID    string  `gorm:"index;size:32;not null" json:"studentId"`
	Password     string  `gorm:"size:128;not null" json:"-"`
	FullName     string  `gorm:"size:128;not null" json:"fullName"`
	Email        *string `gorm:"size:128" json:"email"`
	Birthday     *string `gorm:"size:16" json:"birthday"`
	ProfileImage *string `gorm:"size:255" json:"profileImage"`
	Course       *string `gorm:"size:128" json:"course"`
}

// NewUser holds the fields accepted at registration. Anything else a
// client sends is dropped before the user is stored.
type NewUser struct {
	Username  string
	StudentID string
	Password  string
	FullName  string
	Email     *string
	Birthday  *string
}

// Build returns the User that registration stores for u under id.
func (u NewUser) Build(id int64) User {
	img, course := DefaultProfileImage, DefaultCourse
	return User{
		ID:           id,
		Username:     u.Username,
		StudentID:    u.StudentID,
		Password:     u.Password,
		FullName:     u.FullName,
		Email:        u.Email,
		Birthday:     u.Birthday,
		ProfileImage: &img,
		Course:       &course,
	}
}
