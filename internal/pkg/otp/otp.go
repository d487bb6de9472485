package otp

import (
	"crypto/rand"
	"fmt"
	"time"
)

// DefaultLength 默认验证码位数。
const DefaultLength = 6

// DefaultTTL 验证码有效期。
const DefaultTTL = 5 * time.Minute

// Generate 生成 n 位随机数字验证码（允许前导零）。
//
// 使用 crypto/rand，不能从用户信息或时间推测出来。
// 丢弃 >= 250 的字节再取模，每个数字等概率出现。
func Generate(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid code length: %d", n)
	}
	digits := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(digits) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			digits = append(digits, '0'+b%10)
			if len(digits) == n {
				break
			}
		}
	}
	return string(digits), nil
}

// Valid 判断提交的验证码是否有效。
//
// 只做判断，不做任何状态修改：清空验证码字段、标记已验证等由调用方完成，
// 这样判定逻辑和写库逻辑可以分开测试。
// 过期和码不匹配返回同一个 false，调用方不得区分两者对外暴露。
func Valid(code string, createdAt *time.Time, submitted string, ttl time.Duration) bool {
	if code == "" || createdAt == nil || submitted == "" {
		return false
	}
	if code != submitted {
		return false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return time.Since(*createdAt) <= ttl
}
