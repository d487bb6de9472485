package password

import "golang.org/x/crypto/bcrypt"

// Hash 对明文密码做 bcrypt 哈希。
//
// 同一输入每次产生不同输出（盐随机），但都能通过 Verify 校验。
func Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify 校验明文密码是否与哈希匹配。
func Verify(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
