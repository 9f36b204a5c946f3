package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword bcrypt 上限 72 字节，超出返回 bcrypt.ErrPasswordTooLong
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
