package config

import "github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"

// Policy names. They are also the infix of the override keys, ex: RATE_LIMIT_AUTH_LOGIN_CAPACITY.
const (
	PolicyAPIGlobal          = "api_global"
	PolicyAuthRegister       = "auth_register"
	PolicyAuthLogin          = "auth_login"
	PolicyAuthActivate       = "auth_activate"
	PolicyAuthLogout         = "auth_logout"
	PolicyAuthForgotPassword = "auth_forgot_password"
	PolicyAuthResetPassword  = "auth_reset_password"
	PolicyAuthChangePassword = "auth_change_password"
	PolicyStreamCreate       = "stream_create"
	PolicyStreamLive         = "stream_live"
	PolicyStreamGet          = "stream_get"
	PolicyStreamUpdate       = "stream_update"
	PolicyStreamDelete       = "stream_delete"
	PolicyStreamStart        = "stream_start"
	PolicyStreamStop         = "stream_stop"
)

// DefaultPolicies returns the built-in limits per guarded operation.
// Refill rates are tokens per second: 0.083 is one token every 12s, 0.0033 one every 5min.
func DefaultPolicies() []entity.Policy {
	return []entity.Policy{
		// 60 req/min ceiling shared by every /api/v1 route
		{Name: PolicyAPIGlobal, Prefix: "global_rl:", Operation: "api", Capacity: 60, RefillRate: 1.0},

		{Name: PolicyAuthRegister, Prefix: "auth_register:", Operation: "register", Capacity: 3, RefillRate: 0.01},
		{Name: PolicyAuthLogin, Prefix: "auth_login:", Operation: "login", Capacity: 5, RefillRate: 0.083},
		{Name: PolicyAuthActivate, Prefix: "auth_activate:", Operation: "activate", Capacity: 10, RefillRate: 0.167},
		{Name: PolicyAuthLogout, Prefix: "auth_logout:", Operation: "logout", Capacity: 10, RefillRate: 0.167},
		{Name: PolicyAuthForgotPassword, Prefix: "auth_forgot:", Operation: "forgot_password", Capacity: 3, RefillRate: 0.0033},
		{Name: PolicyAuthResetPassword, Prefix: "auth_reset:", Operation: "reset_password", Capacity: 5, RefillRate: 0.083},
		{Name: PolicyAuthChangePassword, Prefix: "auth_change_password:", Operation: "change_password", Capacity: 5, RefillRate: 0.083},

		{Name: PolicyStreamCreate, Prefix: "stream_create:", Operation: "create", Capacity: 2, RefillRate: 0.033},
		{Name: PolicyStreamLive, Prefix: "stream_live:", Operation: "live", Capacity: 100, RefillRate: 1.667},
		{Name: PolicyStreamGet, Prefix: "stream_get:", Operation: "get", Capacity: 60, RefillRate: 1.0},
		{Name: PolicyStreamUpdate, Prefix: "stream_update:", Operation: "update", Capacity: 10, RefillRate: 0.167},
		{Name: PolicyStreamDelete, Prefix: "stream_delete:", Operation: "delete", Capacity: 5, RefillRate: 0.0167},
		{Name: PolicyStreamStart, Prefix: "stream_start:", Operation: "start", Capacity: 5, RefillRate: 0.083},
		{Name: PolicyStreamStop, Prefix: "stream_stop:", Operation: "stop", Capacity: 5, RefillRate: 0.083},
	}
}
