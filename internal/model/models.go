package model

import "time"

// User 表示系统用户。
//
// OtpCode 与 OtpCreatedAt 必须同时为空或同时有值：
// 签发验证码时一起写入，验证成功后一起清空。
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// 邮箱唯一且区分大小写（binary collation），作为登录凭据原样存储。
	Email        string     `gorm:"type:varchar(191) COLLATE utf8mb4_bin;uniqueIndex;not null" json:"email"`
	FirstName    string     `gorm:"type:varchar(64)" json:"first_name"`
	LastName     string     `gorm:"type:varchar(64)" json:"last_name"`
	Password     string     `gorm:"not null" json:"-"`                // bcrypt 哈希
	IsVerified   bool       `gorm:"default:false" json:"is_verified"` // 邮箱是否已验证
	OtpCode      string     `gorm:"type:varchar(16)" json:"-"`        // 待验证的一次性验证码（空表示无）
	OtpCreatedAt *time.Time `json:"-"`                                // 验证码签发时间
	CreatedAt    time.Time  `json:"created_at"`

	Todos []Todo `gorm:"foreignKey:UserID" json:"-"`
}

// Todo 表示用户的一条待办事项。
//
// 所有读写都以 UserID 为作用域，其他用户的记录等同于不存在。
type Todo struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	UserID      uint   `gorm:"index;not null" json:"user_id"` // 所属用户 ID
	User        User   `gorm:"foreignKey:UserID" json:"-"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Completed   bool   `gorm:"default:false" json:"completed"`
	Archived    bool   `gorm:"default:false" json:"archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // 每次变更（含开关切换）都会推进
}

// HasPendingOtp 判断用户是否存在待验证的验证码。
func (u *User) HasPendingOtp() bool {
	return u.OtpCode != "" && u.OtpCreatedAt != nil
}

// ClearOtp 清空验证码字段（两个字段一起清）。
func (u *User) ClearOtp() {
	u.OtpCode = ""
	u.OtpCreatedAt = nil
}

// SetOtp 写入新的验证码，覆盖任何未完成的旧码。
func (u *User) SetOtp(code string, issuedAt time.Time) {
	u.OtpCode = code
	u.OtpCreatedAt = &issuedAt
}
