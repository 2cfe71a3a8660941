package lms

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// tokenStrategy はログイン応答からトークンを取り出す1つの方法。
type tokenStrategy struct {
	name    string
	extract func(header http.Header, body []byte) (string, bool)
}

// tokenStrategies はトークン抽出の優先順位リスト。先頭から試し、最初に見つかったものを採用する。
//  1. Authorization: Bearer ヘッダー
//  2. 本文の token フィールド
//  3. 本文の jwt フィールド
//  4. 本文の accessToken フィールド
//  5. 本文そのものが文字列
var tokenStrategies = []tokenStrategy{
	{name: "authorization_header", extract: fromAuthorizationHeader},
	{name: "body_token", extract: fromBodyField("token")},
	{name: "body_jwt", extract: fromBodyField("jwt")},
	{name: "body_access_token", extract: fromBodyField("accessToken")},
	{name: "raw_body", extract: fromRawBody},
}

// ExtractToken はログイン応答からベアラートークンを取り出す。
// 見つからない場合は ErrTokenNotFound を返す。
func ExtractToken(header http.Header, body []byte) (string, error) {
	token, _, err := extractToken(header, body)
	return token, err
}

// extractToken はトークンと採用した戦略名を返す。
func extractToken(header http.Header, body []byte) (string, string, error) {
	for _, s := range tokenStrategies {
		if token, ok := s.extract(header, body); ok {
			return token, s.name, nil
		}
	}
	return "", "", ErrTokenNotFound
}

func fromAuthorizationHeader(header http.Header, _ []byte) (string, bool) {
	v := header.Get("Authorization")
	if !strings.HasPrefix(v, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(v, bearerPrefix))
	return token, token != ""
}

func fromBodyField(field string) func(http.Header, []byte) (string, bool) {
	return func(_ http.Header, body []byte) (string, bool) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return "", false
		}
		raw, ok := obj[field]
		if !ok {
			return "", false
		}
		var token string
		if err := json.Unmarshal(raw, &token); err != nil {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}
}

// fromRawBody は本文全体がトークンの場合に対応する。
// JSON文字列リテラル、またはJSONとして解釈できないテキストをトークンとみなす。
// オブジェクト・配列・数値などのJSON値はトークンではない。
func fromRawBody(_ http.Header, body []byte) (string, bool) {
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		return "", false
	}

	if json.Valid(raw) {
		var token string
		if err := json.Unmarshal(raw, &token); err != nil {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}

	if bytes.ContainsAny(raw, " \t\r\n") {
		return "", false
	}
	return string(raw), true
}

// TokenExpiry はJWT形式のトークンからexpクレームを読み取る。
// 署名は検証しない（検証はバックエンドの責務）。JWTでない、またはexpがない場合はfalse。
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
