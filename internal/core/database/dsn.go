package database

import (
	"fmt"
	"net/url"
	"strings"
)

// JDBC/Navicat 专有参数，go-sql-driver 不认识
var jdbcOnlyParams = []string{"characterEncoding", "serverTimezone", "useSSL", "useUnicode", "zeroDateTimeBehavior", "user", "password"}

// normalizeMySQLDSN 把 mysql:// 或 jdbc:mysql:// 形式转成 user:pass@tcp(host)/db?...
// 原生 DSN 原样返回；账号优先级：override > query > URL userinfo
func normalizeMySQLDSN(input, userOverride, passOverride string) string {
	in := strings.TrimSpace(input)
	in = strings.TrimPrefix(in, "jdbc:")
	if !strings.HasPrefix(in, "mysql://") {
		return in
	}
	u, err := url.Parse(in)
	if err != nil {
		return in // 交给驱动报错
	}

	q := u.Query()
	urlPass, _ := u.User.Password()
	user := firstNonEmpty(userOverride, q.Get("user"), u.User.Username())
	pass := firstNonEmpty(passOverride, q.Get("password"), urlPass)

	if cs := q.Get("characterEncoding"); cs != "" && q.Get("charset") == "" {
		q.Set("charset", cs)
	}
	if tz := q.Get("serverTimezone"); tz != "" {
		q.Set("loc", tz)
	}
	if ssl := q.Get("useSSL"); ssl != "" {
		q.Set("tls", tlsMode(ssl))
	}
	for _, k := range jdbcOnlyParams {
		q.Del(k)
	}
	if q.Get("parseTime") == "" {
		q.Set("parseTime", "true")
	}
	if q.Get("charset") == "" {
		q.Set("charset", "utf8mb4")
	}

	cred := user
	if pass != "" {
		cred += ":" + pass
	}
	if cred != "" {
		cred += "@"
	}
	dsn := fmt.Sprintf("%stcp(%s)/%s", cred, u.Host, strings.TrimPrefix(u.Path, "/"))
	if enc := q.Encode(); enc != "" {
		dsn += "?" + enc
	}
	return dsn
}

// tlsMode useSSL -> go-sql-driver 的 tls 取值
func tlsMode(useSSL string) string {
	switch v := strings.ToLower(useSSL); v {
	case "true", "1":
		return "true"
	case "skip-verify", "preferred":
		return v
	}
	return "false"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
