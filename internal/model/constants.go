package model

// AuthProvider 사용자 가입 경로
type AuthProvider string

const (
	AuthProviderEmail  AuthProvider = "email"
	AuthProviderGoogle AuthProvider = "google"
)

// String 메서드
func (p AuthProvider) String() string {
	return string(p)
}

// RequiresPassword 이메일 가입자만 비밀번호 검증
func (p AuthProvider) RequiresPassword() bool {
	return p == AuthProviderEmail
}
