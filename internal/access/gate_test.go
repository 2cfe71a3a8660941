package access

import (
	"testing"

	"github.com/hitoshi/loandesk/internal/model"
)

func TestAuthorize_NoSession_AlwaysRedirectsToLogin(t *testing.T) {
	roles := []model.Role{"", model.RoleAdmin, model.RoleCustomer}
	for _, role := range roles {
		for _, verify := range []bool{false, true} {
			if got := Authorize(nil, role, verify); got != RedirectLogin {
				t.Errorf("Authorize(nil, %q, %v) = %v, want %v", role, verify, got, RedirectLogin)
			}
		}
	}
}

func TestAuthorize_Table(t *testing.T) {
	unverified := &model.Profile{ID: "1", Role: model.RoleCustomer, AccountVerified: false}
	verified := &model.Profile{ID: "2", Role: model.RoleCustomer, AccountVerified: true}
	admin := &model.Profile{ID: "3", Role: model.RoleAdmin}

	tests := []struct {
		name    string
		profile *model.Profile
		role    model.Role
		verify  bool
		want    Decision
	}{
		{"unverified customer needs verification", unverified, model.RoleCustomer, true, RedirectVerifyAccount},
		{"verified customer allowed", verified, model.RoleCustomer, true, Allow},
		{"customer on admin route", unverified, model.RoleAdmin, false, RedirectHome},
		{"verified customer on admin route", verified, model.RoleAdmin, true, RedirectHome},
		{"admin on customer route", admin, model.RoleCustomer, false, RedirectHome},
		{"admin allowed", admin, model.RoleAdmin, false, Allow},
		{"admin skips verification", admin, model.RoleAdmin, true, Allow},
		{"admin on any-role verified route", admin, "", true, Allow},
		{"unverified customer without verification", unverified, model.RoleCustomer, false, Allow},
		{"unverified customer any role verification", unverified, "", true, RedirectVerifyAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.profile, tt.role, tt.verify); got != tt.want {
				t.Errorf("Authorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecision_Target(t *testing.T) {
	tests := []struct {
		d    Decision
		want string
	}{
		{Allow, ""},
		{RedirectLogin, "/login"},
		{RedirectHome, "/"},
		{RedirectVerifyAccount, "/link-account"},
	}
	for _, tt := range tests {
		if got := tt.d.Target(); got != tt.want {
			t.Errorf("%v.Target() = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLandingRoute(t *testing.T) {
	if got := LandingRoute(model.RoleAdmin); got != RouteAdminHome {
		t.Errorf("LandingRoute(admin) = %q, want %q", got, RouteAdminHome)
	}
	if got := LandingRoute(model.RoleCustomer); got != RouteCustomerHome {
		t.Errorf("LandingRoute(customer) = %q, want %q", got, RouteCustomerHome)
	}
	if got := LandingRoute(""); got != RouteCustomerHome {
		t.Errorf("LandingRoute(\"\") = %q, want %q", got, RouteCustomerHome)
	}
}

func TestMapRole(t *testing.T) {
	if got := model.MapRole("ROLE_ADMIN"); got != model.RoleAdmin {
		t.Errorf("MapRole(ROLE_ADMIN) = %q, want admin", got)
	}
	if got := model.MapRole("ROLE_USER"); got != model.RoleCustomer {
		t.Errorf("MapRole(ROLE_USER) = %q, want customer", got)
	}
}
