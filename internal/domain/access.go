package domain

import "strings"

type Outcome int

const (
	MissingCredential Outcome = iota + 1
	InvalidCredential
	IdentityMismatch
	Allowed
)

func (o Outcome) String() string {
	switch o {
	case MissingCredential:
		return "missing_credential"
	case InvalidCredential:
		return "invalid_credential"
	case IdentityMismatch:
		return "identity_mismatch"
	case Allowed:
		return "allowed"
	}
	return "unknown"
}

// Credential 请求里带的 Authorization 头原文
type Credential struct {
	Header  string
	Present bool
}

func BearerCredential(header string) Credential {
	return Credential{Header: header, Present: true}
}

// TokenDecoder 只需要解码能力，签名方案由实现决定
type TokenDecoder interface {
	Decode(token string) (int64, error)
}

// Decision OwnerID 仅在 Outcome == Allowed 时有意义
type Decision struct {
	Outcome Outcome
	OwnerID int64
}

func (d Decision) Allowed() bool { return d.Outcome == Allowed }

const bearerPrefix = "Bearer "

// Decide 按固定顺序判定，先命中者生效：
// 无凭证 -> 凭证无效 -> 身份不符 -> 放行。资源是否存在不在这里判断。
func Decide(cred Credential, dec TokenDecoder, requestedID int64) Decision {
	if !cred.Present {
		return Decision{Outcome: MissingCredential}
	}
	token, ok := strings.CutPrefix(cred.Header, bearerPrefix)
	if !ok {
		return Decision{Outcome: InvalidCredential}
	}
	ownerID, err := dec.Decode(strings.TrimSpace(token))
	if err != nil {
		return Decision{Outcome: InvalidCredential}
	}
	if ownerID != requestedID {
		return Decision{Outcome: IdentityMismatch}
	}
	return Decision{Outcome: Allowed, OwnerID: ownerID}
}
