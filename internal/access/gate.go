// Package access は画面遷移・操作の認可判定を提供する。
// すべて副作用のない純粋関数で、ルーティング層から利用する。
package access

import "github.com/hitoshi/loandesk/internal/model"

// Decision は認可判定の結果を表す。
type Decision int

const (
	// Allow はアクセスを許可する。
	Allow Decision = iota
	// RedirectLogin は未ログインのためログイン画面へ誘導する。
	RedirectLogin
	// RedirectHome は要求ロール不一致のためトップへ誘導する。
	RedirectHome
	// RedirectVerifyAccount は口座未確認の顧客を口座連携画面へ誘導する。
	RedirectVerifyAccount
)

// 遷移先のルート。
const (
	RouteLogin         = "/login"
	RouteHome          = "/"
	RouteVerifyAccount = "/link-account"
	RouteAdminHome     = "/admin"
	RouteCustomerHome  = "/dashboard"
)

// String はログ・メトリクス用の名前を返す。
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case RedirectVerifyAccount:
		return "redirect_verify_account"
	default:
		return "unknown"
	}
}

// Target は誘導先のルートを返す。Allowの場合は空文字列。
func (d Decision) Target() string {
	switch d {
	case RedirectLogin:
		return RouteLogin
	case RedirectHome:
		return RouteHome
	case RedirectVerifyAccount:
		return RouteVerifyAccount
	default:
		return ""
	}
}

// Authorize はセッション状態と要求条件からアクセス可否を判定する。
// requiredRoleが空の場合はロールを問わない。
// 判定順: 未ログイン → ロール不一致 → 口座未確認（顧客のみ） → 許可。
func Authorize(profile *model.Profile, requiredRole model.Role, requireVerification bool) Decision {
	if profile == nil {
		return RedirectLogin
	}

	if requiredRole != "" && profile.Role != requiredRole {
		return RedirectHome
	}

	if requireVerification && profile.Role == model.RoleCustomer && !profile.AccountVerified {
		return RedirectVerifyAccount
	}

	return Allow
}

// LandingRoute はログイン直後およびルートパスアクセス時の遷移先を返す。
func LandingRoute(role model.Role) string {
	if role == model.RoleAdmin {
		return RouteAdminHome
	}
	return RouteCustomerHome
}
